package model

// TaxonomyNode is one entry of a concept tree as written in a taxonomy file.
// Children are narrower concepts; Broader lists additional broader ids for
// concepts that sit under more than one parent.
type TaxonomyNode struct {
	ID       string          `yaml:"id"`
	Label    string          `yaml:"label,omitempty"`
	Broader  []string        `yaml:"broader,omitempty"`
	Children []*TaxonomyNode `yaml:"children,omitempty"`
}

// Concept is a node of the concept DAG. Narrower is always the inverse of
// the Broader edges of other concepts.
type Concept struct {
	ID       string   `json:"id"`
	Broader  []string `json:"broader"`
	Narrower []string `json:"narrower"`
}

// IsRoot reports whether the concept has no broader concept.
func (c Concept) IsRoot() bool {
	return len(c.Broader) == 0
}
