package clustering

import (
	"context"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/chunk"
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/concept"
	"github.com/joelhooks/pdf-brain/internal/domain/search/filter"
)

// ChunkLister returns every stored chunk matching filters.
type ChunkLister interface {
	ListChunks(ctx context.Context, filters filter.Expression) ([]chunk.Chunk, error)
}

// Summarizer condenses member texts of one cluster.
type Summarizer interface {
	Summarize(ctx context.Context, texts []string) (cluster.Digest, error)
}

// ConceptSource returns the taxonomy clusters are mapped onto.
type ConceptSource interface {
	Concepts(ctx context.Context) ([]concept.Concept, error)
}

// RunStore persists a finished run, superseding the previous one.
type RunStore interface {
	SaveRun(ctx context.Context, run *cluster.Run) error
}

// SummaryIndexer receives the summaries of a finished run for an extra index.
type SummaryIndexer interface {
	IndexSummaries(ctx context.Context, runID string, summaries []cluster.Summary) error
}

// BatchEmbedder vectorizes summary texts.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
