package pipeline

import "github.com/hejijunhao/canopy/internal/output"

// reorderBuffer holds records that finished out of order and releases them
// once every earlier sequence number has been released.
type reorderBuffer struct {
	next    int
	pending map[int]output.Record
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: make(map[int]output.Record)}
}

// add stores rec under seq and returns the run of records now releasable.
func (b *reorderBuffer) add(seq int, rec output.Record) []output.Record {
	b.pending[seq] = rec
	var ready []output.Record
	for {
		r, ok := b.pending[b.next]
		if !ok {
			return ready
		}
		delete(b.pending, b.next)
		ready = append(ready, r)
		b.next++
	}
}
