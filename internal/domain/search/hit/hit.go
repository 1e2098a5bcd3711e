package hit

import (
	"fmt"

	"github.com/joelhooks/pdf-brain/internal/domain/search/provenance"
)

// Hit is a single retrieval result: a chunk, or a cluster summary when
// Provenance is ClusterSummary.
type Hit struct {
	id         string
	documentID string
	title      string
	page       int
	chunkIndex int
	content    string
	expanded   string
	score      float64
	provenance provenance.Provenance
}

// New creates a hit. id is the store key of the chunk or summary.
func New(
	id, documentID, title string, page, chunkIndex int,
	content string, score float64, p provenance.Provenance,
) Hit {
	return Hit{
		id: id, documentID: documentID, title: title,
		page: page, chunkIndex: chunkIndex,
		content: content, score: score, provenance: p,
	}
}

// ID returns the store identifier.
func (h *Hit) ID() string { return h.id }

// DocumentID returns the source document id (empty for summaries).
func (h *Hit) DocumentID() string { return h.documentID }

// Title returns the source document title.
func (h *Hit) Title() string { return h.title }

// Page returns the 1-based page the chunk came from (0 when unknown).
func (h *Hit) Page() int { return h.page }

// ChunkIndex returns the chunk's position inside its document.
func (h *Hit) ChunkIndex() int { return h.chunkIndex }

// Content returns the matched text.
func (h *Hit) Content() string { return h.content }

// Expanded returns the content with adjacent context, or "" when not expanded.
func (h *Hit) Expanded() string { return h.expanded }

// Score returns the relevance score in [0,1].
func (h *Hit) Score() float64 { return h.score }

// Provenance returns the source tag.
func (h *Hit) Provenance() provenance.Provenance { return h.provenance }

// DedupKey identifies the underlying passage: (document, page, chunk) for
// chunks and the summary id for cluster summaries.
func (h *Hit) DedupKey() string {
	if h.provenance == provenance.ClusterSummary {
		return "summary:" + h.id
	}
	return fmt.Sprintf("%s\x00%d\x00%d", h.documentID, h.page, h.chunkIndex)
}

// WithScore returns a copy with a new score.
func (h Hit) WithScore(score float64) Hit {
	h.score = score
	return h
}

// WithProvenance returns a copy with a new provenance.
func (h Hit) WithProvenance(p provenance.Provenance) Hit {
	h.provenance = p
	return h
}

// WithExpanded returns a copy carrying the expanded context window.
func (h Hit) WithExpanded(text string) Hit {
	h.expanded = text
	return h
}
