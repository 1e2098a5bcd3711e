package clustering

import (
	"context"
	"fmt"

	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/vector"
)

const (
	// convergenceCheckEvery is how often mini-batch compares centroid snapshots.
	convergenceCheckEvery = 10
	// convergenceTolerance is the Frobenius shift below which mini-batch stops.
	convergenceTolerance = 1e-4
)

// miniBatchState is the per-call arena: per-centroid update counts and the
// index permutation batches are drawn from.
type miniBatchState struct {
	counts  []int
	indices []int
	nearest []int
}

func newMiniBatchState(n, k, batchSize int) *miniBatchState {
	s := &miniBatchState{
		counts:  make([]int, k),
		indices: make([]int, n),
		nearest: make([]int, batchSize),
	}
	for i := range s.indices {
		s.indices[i] = i
	}
	return s
}

// ClusterMiniBatch runs mini-batch k-means: k-means++ seeding over the full
// set, then per-iteration sampled batches with learning rate 1/count per
// centroid. Every 10th iteration the centroids are compared with the previous
// snapshot and the run stops once the Frobenius shift drops below 1e-4.
// A final full pass gives every point one assignment.
func (c *Clusterer) ClusterMiniBatch(
	ctx context.Context, points []cluster.Point, k, batchSize, maxIterations int,
) (cluster.Result, error) {
	ds, err := prepare(points, k)
	if err != nil {
		return cluster.Result{}, fmt.Errorf("mini-batch kmeans: %w", err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	batchSize = min(batchSize, ds.n())

	rng := c.callRand()
	centroids := seedPlusPlus(rng, ds.vecs, k)
	snapshot := copyMatrix(centroids)
	state := newMiniBatchState(ds.n(), k, batchSize)

	iterations := 0
	converged := false
	for iterations < maxIterations {
		if err := ctx.Err(); err != nil {
			return cluster.Result{}, err
		}
		iterations++

		// partial Fisher-Yates: the first batchSize slots become a uniform sample
		for i := range batchSize {
			j := i + rng.IntN(ds.n()-i)
			state.indices[i], state.indices[j] = state.indices[j], state.indices[i]
		}
		batch := state.indices[:batchSize]

		for b, idx := range batch {
			state.nearest[b], _ = nearestCentroid(ds.vecs[idx], centroids)
		}
		for b, idx := range batch {
			cid := state.nearest[b]
			state.counts[cid]++
			eta := 1 / float64(state.counts[cid])
			centroid := centroids[cid]
			for d, x := range ds.vecs[idx] {
				centroid[d] = (1-eta)*centroid[d] + eta*x
			}
		}

		if iterations%convergenceCheckEvery == 0 {
			if vector.FrobeniusDiff(centroids, snapshot) < convergenceTolerance {
				converged = true
				break
			}
			snapshot = copyMatrix(centroids)
		}
	}

	labels := make([]int, ds.n())
	for i := range labels {
		labels[i] = -1
	}
	dists := make([]float64, ds.n())
	c.assign(ds.vecs, centroids, labels, dists)

	res := ds.result(centroids, labels, dists)
	res.Iterations = iterations
	res.Converged = converged
	return res, nil
}
