package clustering

import (
	"context"
	"fmt"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
)

// Algorithm selects the clustering variant.
type Algorithm int

// Supported variants.
const (
	AlgorithmHard Algorithm = iota + 1
	AlgorithmMiniBatch
	AlgorithmSoft
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmHard:
		return "hard"
	case AlgorithmMiniBatch:
		return "mini_batch"
	case AlgorithmSoft:
		return "soft"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// ParseAlgorithm maps a config or CLI value onto an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "hard", "kmeans":
		return AlgorithmHard, nil
	case "mini_batch", "minibatch":
		return AlgorithmMiniBatch, nil
	case "soft":
		return AlgorithmSoft, nil
	default:
		return 0, domain.NewInvalidInput("algorithm", s)
	}
}

// Params carries the knobs of every variant; each variant reads its own.
type Params struct {
	K             int
	MaxIterations int
	BatchSize     int
	Soft          SoftOptions
}

// Run dispatches to the variant named by alg.
func (c *Clusterer) Run(
	ctx context.Context, alg Algorithm, points []cluster.Point, p Params,
) (cluster.Result, error) {
	switch alg {
	case AlgorithmHard:
		return c.Cluster(ctx, points, p.K, p.MaxIterations)
	case AlgorithmMiniBatch:
		return c.ClusterMiniBatch(ctx, points, p.K, p.BatchSize, p.MaxIterations)
	case AlgorithmSoft:
		opts := p.Soft
		if opts.MaxIterations <= 0 {
			opts.MaxIterations = p.MaxIterations
		}
		return c.ClusterSoft(ctx, points, opts)
	default:
		return cluster.Result{}, domain.NewInvalidInput("algorithm", alg.String())
	}
}

// Sample returns up to n points drawn uniformly without replacement.
// The input is not modified; when n >= len(points) the input is returned as is.
func (c *Clusterer) Sample(points []cluster.Point, n int) []cluster.Point {
	if n <= 0 || n >= len(points) {
		return points
	}
	rng := c.callRand()
	idx := rng.Perm(len(points))[:n]
	out := make([]cluster.Point, n)
	for i, j := range idx {
		out[i] = points[j]
	}
	return out
}
