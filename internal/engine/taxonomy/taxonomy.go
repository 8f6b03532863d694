// Package taxonomy holds the concept DAG: concepts linked by broader and
// narrower edges. The graph is not synchronised; callers guard it.
package taxonomy

import (
	"iter"
	"slices"
	"sort"

	"github.com/hejijunhao/canopy/internal/model"
)

type set map[string]struct{}

// Graph is a directed acyclic concept hierarchy. narrower is kept as the
// exact inverse of broader.
type Graph struct {
	broader  map[string]set
	narrower map[string]set
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		broader:  make(map[string]set),
		narrower: make(map[string]set),
	}
}

// AddConcept inserts id, or replaces its broader set if it already exists.
// Every broader id must exist and must not be id itself or one of its
// descendants. A rejected edit leaves the graph unchanged. replaced is true
// when an existing concept was re-pointed.
func (g *Graph) AddConcept(id string, broader []string) (replaced bool, err error) {
	const op = "addConcept"
	if id == "" {
		return false, model.NewError(model.KindClassifier, op, id, model.ErrInvalidConcept)
	}

	parents := make(set, len(broader))
	for _, b := range broader {
		if b == id {
			return false, model.NewError(model.KindCyclicHierarchy, op, id, nil)
		}
		if _, ok := g.broader[b]; !ok {
			return false, model.NewError(model.KindConceptNotFound, op, b, nil)
		}
		parents[b] = struct{}{}
	}

	_, replaced = g.broader[id]
	if replaced && len(parents) > 0 {
		for d := range g.Descendants(id) {
			if _, ok := parents[d]; ok {
				return false, model.NewError(model.KindCyclicHierarchy, op, id, nil)
			}
		}
	}

	if replaced {
		for b := range g.broader[id] {
			delete(g.narrower[b], id)
		}
	} else {
		g.narrower[id] = make(set)
	}
	g.broader[id] = parents
	for b := range parents {
		g.narrower[b][id] = struct{}{}
	}
	return replaced, nil
}

// RemoveConcept deletes id and every edge touching it. Narrower concepts
// lose the edge but are neither removed nor re-parented.
func (g *Graph) RemoveConcept(id string) error {
	if _, ok := g.broader[id]; !ok {
		return model.NewError(model.KindConceptNotFound, "removeConcept", id, nil)
	}
	for b := range g.broader[id] {
		delete(g.narrower[b], id)
	}
	for n := range g.narrower[id] {
		delete(g.broader[n], id)
	}
	delete(g.broader, id)
	delete(g.narrower, id)
	return nil
}

// Has reports whether id is in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.broader[id]
	return ok
}

// Len returns the number of concepts.
func (g *Graph) Len() int {
	return len(g.broader)
}

// Broader returns the direct broader concepts of id, sorted.
func (g *Graph) Broader(id string) ([]string, error) {
	b, ok := g.broader[id]
	if !ok {
		return nil, model.NewError(model.KindConceptNotFound, "getBroaderConcepts", id, nil)
	}
	return sortedKeys(b), nil
}

// Narrower returns the direct narrower concepts of id, sorted.
func (g *Graph) Narrower(id string) ([]string, error) {
	n, ok := g.narrower[id]
	if !ok {
		return nil, model.NewError(model.KindConceptNotFound, "getNarrowerConcepts", id, nil)
	}
	return sortedKeys(n), nil
}

// Roots returns the concepts without broader concepts, sorted.
func (g *Graph) Roots() []string {
	roots := make([]string, 0)
	for id, b := range g.broader {
		if len(b) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Concepts returns every concept id, sorted.
func (g *Graph) Concepts() []string {
	ids := make([]string, 0, len(g.broader))
	for id := range g.broader {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Concept returns the node for id with both edge directions.
func (g *Graph) Concept(id string) (model.Concept, error) {
	if !g.Has(id) {
		return model.Concept{}, model.NewError(model.KindConceptNotFound, "concept", id, nil)
	}
	return model.Concept{
		ID:       id,
		Broader:  sortedKeys(g.broader[id]),
		Narrower: sortedKeys(g.narrower[id]),
	}, nil
}

// Siblings returns the concepts sharing at least one broader concept with
// id, excluding id, sorted.
func (g *Graph) Siblings(id string) []string {
	out := make(set)
	for b := range g.broader[id] {
		for s := range g.narrower[b] {
			if s != id {
				out[s] = struct{}{}
			}
		}
	}
	return sortedKeys(out)
}

// Ancestors yields every transitive broader concept of id, depth first.
func (g *Graph) Ancestors(id string) iter.Seq[string] {
	return g.walk(id, g.broader)
}

// Descendants yields every transitive narrower concept of id, depth first.
func (g *Graph) Descendants(id string) iter.Seq[string] {
	return g.walk(id, g.narrower)
}

// IsAncestor reports whether a is a transitive broader concept of id.
func (g *Graph) IsAncestor(a, id string) bool {
	for x := range g.Ancestors(id) {
		if x == a {
			return true
		}
	}
	return false
}

// walk is a lazy pre-order DFS over edges. Neighbours are visited in id
// order so the sequence is deterministic; each node is yielded once.
func (g *Graph) walk(start string, edges map[string]set) iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := set{start: {}}
		stack := pushReversed(nil, edges[start])
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if !yield(id) {
				return
			}
			stack = pushReversed(stack, edges[id])
		}
	}
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	c := New()
	for id, b := range g.broader {
		c.broader[id] = copySet(b)
	}
	for id, n := range g.narrower {
		c.narrower[id] = copySet(n)
	}
	return c
}

func pushReversed(stack []string, s set) []string {
	keys := sortedKeys(s)
	slices.Reverse(keys)
	return append(stack, keys...)
}

func sortedKeys(s set) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copySet(s set) set {
	c := make(set, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}
