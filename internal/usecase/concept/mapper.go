// Package concept maps cluster centroids onto a controlled vocabulary.
package concept

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	domconcept "github.com/joelhooks/pdf-brain/internal/domain/concept"
	"github.com/joelhooks/pdf-brain/internal/domain/vector"
)

// MaxLabelRunes bounds a suggested label.
const MaxLabelRunes = 60

// ClusterInput is the part of a cluster the mapper looks at.
type ClusterInput struct {
	ID          int
	SummaryText string
	Centroid    []float32
}

// MapResult is either a match (ConceptID, Confidence) or a suggestion.
type MapResult struct {
	Matched        bool
	ConceptID      string
	Confidence     float64
	BestSimilarity float64
	SuggestedLabel string
}

// MapCluster finds the concept whose embedding is most cosine-similar to the
// centroid. Similarity >= threshold is a match; anything else yields a
// suggested label taken from the summary's first sentence.
//
// Concepts are scanned in order with a strict comparison, so the first
// concept reaching the maximum wins. Concepts without an embedding, or with a
// different dimensionality than the centroid, are ignored.
func MapCluster(c ClusterInput, concepts []domconcept.Concept, threshold float64) MapResult {
	bestIdx := -1
	best := 0.0
	for i, con := range concepts {
		if len(con.Embedding) == 0 || len(con.Embedding) != len(c.Centroid) {
			continue
		}
		sim := vector.CosineSimilarity(c.Centroid, con.Embedding)
		if bestIdx < 0 || sim > best {
			bestIdx = i
			best = sim
		}
	}

	if bestIdx >= 0 && best >= threshold {
		return MapResult{
			Matched:        true,
			ConceptID:      concepts[bestIdx].ID,
			Confidence:     best,
			BestSimilarity: best,
		}
	}
	return MapResult{
		BestSimilarity: best,
		SuggestedLabel: SuggestLabel(c.SummaryText, c.ID),
	}
}

// SuggestLabel returns the first sentence of text cut to MaxLabelRunes, or
// "cluster-<id>" when text has no content.
func SuggestLabel(text string, clusterID int) string {
	s := strings.TrimSpace(FirstSentence(text))
	if s == "" {
		return "cluster-" + strconv.Itoa(clusterID)
	}
	if utf8.RuneCountInString(s) <= MaxLabelRunes {
		return s
	}
	runes := []rune(s)[:MaxLabelRunes]
	cut := strings.TrimRightFunc(string(runes), unicode.IsSpace)
	// prefer ending on a word boundary when one is reasonably close
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

// FirstSentence returns text up to and including the first '.', '!' or '?'
// followed by whitespace or the end of text. Newlines also end a sentence.
func FirstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		switch r {
		case '\n':
			return strings.TrimSpace(text[:i])
		case '.', '!', '?':
			next := i + utf8.RuneLen(r)
			if next >= len(text) {
				return text
			}
			nr, _ := utf8.DecodeRuneInString(text[next:])
			if unicode.IsSpace(nr) {
				return text[:next]
			}
		}
	}
	return text
}
