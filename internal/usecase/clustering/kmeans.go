package clustering

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/vector"
)

// Cluster runs full-batch k-means with k-means++ seeding.
//
// It returns exactly k centroids and one assignment per point, in input order.
// Iteration stops when an assignment pass changes nothing or after
// maxIterations passes (<= 0 means DefaultMaxIterations). A cluster that ends
// up empty keeps its previous centroid and reports Size 0.
func (c *Clusterer) Cluster(
	ctx context.Context, points []cluster.Point, k, maxIterations int,
) (cluster.Result, error) {
	ds, err := prepare(points, k)
	if err != nil {
		return cluster.Result{}, fmt.Errorf("kmeans: %w", err)
	}
	return c.kmeans(ctx, c.callRand(), ds, k, maxIterations)
}

func (c *Clusterer) kmeans(
	ctx context.Context, rng *rand.Rand, ds dataset, k, maxIterations int,
) (cluster.Result, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	centroids := seedPlusPlus(rng, ds.vecs, k)
	labels := make([]int, ds.n())
	for i := range labels {
		labels[i] = -1
	}
	dists := make([]float64, ds.n())
	sums := make([][]float64, k)
	for i := range sums {
		sums[i] = make([]float64, ds.dim)
	}
	counts := make([]int, k)

	iterations := 0
	converged := false
	for iterations < maxIterations {
		if err := ctx.Err(); err != nil {
			return cluster.Result{}, err
		}
		iterations++

		changed := c.assign(ds.vecs, centroids, labels, dists)
		if changed == 0 {
			converged = true
			break
		}
		updateCentroids(ds.vecs, labels, centroids, sums, counts)
	}
	if !converged {
		// the last update moved centroids; realign labels and distances with them
		c.assign(ds.vecs, centroids, labels, dists)
	}

	res := ds.result(centroids, labels, dists)
	res.Iterations = iterations
	res.Converged = converged
	return res, nil
}

// assign labels every point with its nearest centroid and records the
// Euclidean distance. It returns how many labels changed.
func (c *Clusterer) assign(vecs, centroids [][]float64, labels []int, dists []float64) int {
	n := len(vecs)
	workers := c.workers
	if n*len(centroids) < parallelWork || workers <= 1 {
		return assignRange(vecs, centroids, labels, dists, 0, n)
	}

	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	changed := make([]int, workers)

	var g errgroup.Group
	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			changed[w] = assignRange(vecs, centroids, labels, dists, lo, hi)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, ch := range changed {
		total += ch
	}
	return total
}

func assignRange(vecs, centroids [][]float64, labels []int, dists []float64, lo, hi int) int {
	changed := 0
	for i := lo; i < hi; i++ {
		nearest, d := nearestCentroid(vecs[i], centroids)
		dists[i] = math.Sqrt(d)
		if labels[i] != nearest {
			labels[i] = nearest
			changed++
		}
	}
	return changed
}

// nearestCentroid returns the index of the closest centroid and the squared
// distance to it. Ties go to the lower index.
func nearestCentroid(v []float64, centroids [][]float64) (int, float64) {
	nearest := 0
	minDist := math.MaxFloat64
	for c, centroid := range centroids {
		if d := vector.SquaredEuclidean(v, centroid); d < minDist {
			minDist = d
			nearest = c
		}
	}
	return nearest, minDist
}

// updateCentroids recomputes centroids as member means using the caller's buffers.
// Centroids without members are left untouched.
func updateCentroids(vecs [][]float64, labels []int, centroids, sums [][]float64, counts []int) {
	for c := range centroids {
		counts[c] = 0
		for d := range sums[c] {
			sums[c][d] = 0
		}
	}
	for i, v := range vecs {
		c := labels[i]
		counts[c]++
		for d, x := range v {
			sums[c][d] += x
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		inv := 1 / float64(counts[c])
		for d := range centroids[c] {
			centroids[c][d] = sums[c][d] * inv
		}
	}
}
