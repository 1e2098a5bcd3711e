package search

import (
	"context"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
)

// ChunkSource answers chunk-level retrieval: nearest neighbours, full-text
// matches and neighbouring chunks for context expansion.
type ChunkSource interface {
	NearestChunks(
		ctx context.Context, embedding []float32, limit int, filters filter.Expression,
	) ([]hit.Hit, error)

	KeywordSearch(
		ctx context.Context, query string, limit int, filters filter.Expression,
	) ([]hit.Hit, error)

	// AdjacentChunk returns the text at chunkIndex in documentID; ok is false
	// when the document has no such chunk.
	AdjacentChunk(ctx context.Context, documentID string, chunkIndex int) (text string, ok bool, err error)
}

// SummarySource answers nearest cluster summaries.
type SummarySource interface {
	NearestSummaries(ctx context.Context, embedding []float32, limit int) ([]hit.Hit, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
