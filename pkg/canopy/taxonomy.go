package canopy

import "github.com/hejijunhao/canopy/internal/model"

// TaxonomyNode is one concept of a taxonomy tree, in the YAML file layout.
type TaxonomyNode = model.TaxonomyNode

// Taxonomy returns the concept hierarchy as a tree in the layout LoadTaxonomy
// reads. A concept with several broader concepts is nested under the first
// one (by id) and lists the others in Broader, so that writing the tree out
// and loading it again restores the same edges.
func (c *Classifier) Taxonomy() []*TaxonomyNode {
	concepts := c.engine.Concepts()
	byID := make(map[string]model.Concept, len(concepts))
	for _, cc := range concepts {
		byID[cc.ID] = cc
	}

	var build func(id string) *TaxonomyNode
	build = func(id string) *TaxonomyNode {
		cc := byID[id]
		n := &TaxonomyNode{ID: id}
		if len(cc.Broader) > 1 {
			n.Broader = append([]string(nil), cc.Broader[1:]...)
		}
		for _, child := range cc.Narrower {
			// Nested only under its first broader concept.
			if b := byID[child].Broader; len(b) > 0 && b[0] == id {
				n.Children = append(n.Children, build(child))
			}
		}
		return n
	}

	roots := c.engine.GetRootConcepts()
	tree := make([]*TaxonomyNode, 0, len(roots))
	for _, id := range roots {
		tree = append(tree, build(id))
	}
	return tree
}
