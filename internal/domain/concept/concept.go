// Package concept describes entries of the controlled vocabulary clusters are mapped onto.
package concept

import "strings"

// Concept is one taxonomy entry. Embedding is optional; concepts without one
// never match.
type Concept struct {
	ID        string    `yaml:"id" json:"id"`
	PrefLabel string    `yaml:"pref_label" json:"pref_label"`
	AltLabels []string  `yaml:"alt_labels,omitempty" json:"alt_labels,omitempty"`
	Embedding []float32 `yaml:"embedding,omitempty" json:"-"`
}

// EmbeddingText is the text embedded for a concept that arrives without a vector.
func (c Concept) EmbeddingText() string {
	if len(c.AltLabels) == 0 {
		return c.PrefLabel
	}
	return c.PrefLabel + "; " + strings.Join(c.AltLabels, "; ")
}
