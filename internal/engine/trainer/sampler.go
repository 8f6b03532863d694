package trainer

import (
	"iter"
	"sort"

	"github.com/zeebo/xxh3"
)

// Hierarchy is the read-only view of the taxonomy a sampler needs.
type Hierarchy interface {
	Concepts() []string
	Has(id string) bool
	Ancestors(id string) iter.Seq[string]
}

// NegativeSampler selects the concepts whose positives serve as negatives
// for conceptID. The result is sorted.
type NegativeSampler func(h Hierarchy, conceptID string) []string

// Hierarchical uses every concept except conceptID and its ancestors, so
// general text legitimately filed under a broader concept is not penalised.
func Hierarchical(h Hierarchy, conceptID string) []string {
	excluded := map[string]struct{}{conceptID: {}}
	for a := range h.Ancestors(conceptID) {
		excluded[a] = struct{}{}
	}
	out := make([]string, 0)
	for _, c := range h.Concepts() {
		if _, ok := excluded[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Exhaustive uses every other concept.
func Exhaustive(h Hierarchy, conceptID string) []string {
	out := make([]string, 0)
	for _, c := range h.Concepts() {
		if c != conceptID {
			out = append(out, c)
		}
	}
	return out
}

// Sampled caps base at n concepts, picked by a hash of the concept pair so
// the choice is stable across runs.
func Sampled(n int, base NegativeSampler) NegativeSampler {
	return func(h Hierarchy, conceptID string) []string {
		all := base(h, conceptID)
		if n <= 0 || len(all) <= n {
			return all
		}
		key := func(c string) uint64 { return xxh3.HashString(conceptID + "\x00" + c) }
		sort.Slice(all, func(i, j int) bool {
			ki, kj := key(all[i]), key(all[j])
			if ki != kj {
				return ki < kj
			}
			return all[i] < all[j]
		})
		picked := all[:n]
		sort.Strings(picked)
		return picked
	}
}

// SamplerByName resolves a configured sampler name.
func SamplerByName(name string, maxNegatives int) (NegativeSampler, bool) {
	switch name {
	case "", "hierarchical":
		return Hierarchical, true
	case "exhaustive":
		return Exhaustive, true
	case "sampled":
		return Sampled(maxNegatives, Hierarchical), true
	default:
		return nil, false
	}
}
