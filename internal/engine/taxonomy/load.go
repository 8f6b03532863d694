package taxonomy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hejijunhao/canopy/internal/model"
)

// File is the on-disk taxonomy layout:
//
//	scheme: iptc
//	concepts:
//	  - id: economy
//	    children:
//	      - id: markets
//	      - id: trade
//	        broader: [politics]
type File struct {
	Scheme   string                `yaml:"scheme"`
	Concepts []*model.TaxonomyNode `yaml:"concepts"`
}

// LoadFile reads a YAML taxonomy file and builds its Graph.
func LoadFile(path string) (*Graph, *File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("taxonomy: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("taxonomy: parse %s: %w", path, err)
	}
	g, err := FromNodes(f.Concepts)
	if err != nil {
		return nil, nil, err
	}
	return g, &f, nil
}

// Edges flattens a concept tree into id → broader ids. A concept listed
// under several parents, or with extra broader ids, gets the union.
func Edges(nodes []*model.TaxonomyNode) (map[string][]string, error) {
	edges := make(map[string]set)
	var visit func(n *model.TaxonomyNode, parent string) error
	visit = func(n *model.TaxonomyNode, parent string) error {
		if n == nil || n.ID == "" {
			return fmt.Errorf("taxonomy: node without id under %q", parent)
		}
		b, ok := edges[n.ID]
		if !ok {
			b = make(set)
			edges[n.ID] = b
		}
		if parent != "" {
			b[parent] = struct{}{}
		}
		for _, extra := range n.Broader {
			b[extra] = struct{}{}
		}
		for _, c := range n.Children {
			if err := visit(c, n.ID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range nodes {
		if err := visit(n, ""); err != nil {
			return nil, err
		}
	}

	out := make(map[string][]string, len(edges))
	for id, b := range edges {
		out[id] = sortedKeys(b)
	}
	return out, nil
}

// Order returns the concept ids of edges so that every concept comes after
// all of its broader concepts. Concepts that cannot be placed sit on a cycle
// or reference an unknown id.
func Order(edges map[string][]string) ([]string, error) {
	pending := make([]string, 0, len(edges))
	for id := range edges {
		pending = append(pending, id)
	}
	sort.Strings(pending)

	placed := make(set, len(edges))
	order := make([]string, 0, len(edges))
	for len(pending) > 0 {
		var rest []string
		for _, id := range pending {
			ready := true
			for _, b := range edges[id] {
				if _, ok := placed[b]; !ok {
					ready = false
					break
				}
			}
			if ready {
				placed[id] = struct{}{}
				order = append(order, id)
			} else {
				rest = append(rest, id)
			}
		}
		if len(rest) == len(pending) {
			for _, id := range rest {
				for _, b := range edges[id] {
					if _, ok := edges[b]; !ok {
						return nil, model.NewError(model.KindConceptNotFound, "import", b, nil)
					}
				}
			}
			return nil, model.NewError(model.KindCyclicHierarchy, "import", rest[0], nil)
		}
		pending = rest
	}
	return order, nil
}

// FromNodes builds a Graph from a concept tree.
func FromNodes(nodes []*model.TaxonomyNode) (*Graph, error) {
	edges, err := Edges(nodes)
	if err != nil {
		return nil, err
	}
	return FromEdges(edges)
}

// FromEdges builds a Graph from id → broader ids, inserting every concept
// after its broader concepts.
func FromEdges(edges map[string][]string) (*Graph, error) {
	order, err := Order(edges)
	if err != nil {
		return nil, err
	}
	g := New()
	for _, id := range order {
		if _, err := g.AddConcept(id, edges[id]); err != nil {
			return nil, err
		}
	}
	return g, nil
}
