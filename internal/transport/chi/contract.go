package chi

import (
	"context"

	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/search/hit"
	"github.com/joelhooks/pdf-brain/internal/domain/search/request"
	clusteringuc "github.com/joelhooks/pdf-brain/internal/usecase/clustering"
	healthuc "github.com/joelhooks/pdf-brain/internal/usecase/health"
)

// Searcher answers retrieval requests.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) ([]hit.Hit, error)
}

// Rebuilder runs the clustering pipeline.
type Rebuilder interface {
	Run(ctx context.Context, opts clusteringuc.RunOptions) (cluster.Run, error)
}

// RunReader loads the latest persisted clustering run.
type RunReader interface {
	LatestRun(ctx context.Context) (cluster.Run, error)
}

// HealthReporter aggregates component health.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}
