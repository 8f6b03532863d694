package features

import (
	"context"
	"math"

	"github.com/zeebo/xxh3"

	"github.com/hejijunhao/canopy/internal/model"
)

// DefaultBuckets is the default size of the hashed feature space.
const DefaultBuckets = 1 << 20

// Hashing is a bag-of-words extractor: each word (and optionally each pair
// of adjacent words) is hashed into one of Buckets features, weighted by
// 1+log(tf) and L2-normalised.
type Hashing struct {
	Buckets int
	Bigrams bool
}

// NewHashing returns a Hashing extractor. buckets <= 0 selects DefaultBuckets.
func NewHashing(buckets int, bigrams bool) *Hashing {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	return &Hashing{Buckets: buckets, Bigrams: bigrams}
}

// Extract never fails on valid input; it only reports context cancellation.
func (h *Hashing) Extract(ctx context.Context, text string) (model.FeatureVector, error) {
	if err := ctx.Err(); err != nil {
		return model.FeatureVector{}, err
	}

	words := Words(text)
	tf := make(map[int]float64, len(words)*2)
	for i, w := range words {
		tf[h.bucket(w)]++
		if h.Bigrams && i > 0 {
			tf[h.bucket(words[i-1]+" "+w)]++
		}
	}

	var norm float64
	for i, c := range tf {
		v := 1 + math.Log(c)
		tf[i] = v
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range tf {
			tf[i] /= norm
		}
	}
	return model.NewFeatureVector(tf), nil
}

func (h *Hashing) bucket(term string) int {
	return int(xxh3.HashString(term) % uint64(h.Buckets))
}
