package clustering

import (
	"context"
	"fmt"
	"math"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/vector"
)

// SoftOptions configures ClusterSoft.
type SoftOptions struct {
	MaxClusters    int
	MinProbability float64
	UseBIC         bool
	Temperature    float64
	MaxIterations  int
}

// DefaultSoftOptions returns max 10 clusters, 0.01 minimum probability,
// BIC selection on and temperature 0.5.
func DefaultSoftOptions() SoftOptions {
	return SoftOptions{
		MaxClusters:    10,
		MinProbability: 0.01,
		UseBIC:         true,
		Temperature:    0.5,
	}
}

// ClusterSoft assigns each point a probability per cluster:
// softmax(-distance/temperature) against hard k-means centroids.
// Pairs below MinProbability are dropped and the rest are not renormalized.
func (c *Clusterer) ClusterSoft(
	ctx context.Context, points []cluster.Point, opts SoftOptions,
) (cluster.Result, error) {
	if opts.Temperature <= 0 || math.IsNaN(opts.Temperature) {
		return cluster.Result{}, fmt.Errorf("soft clustering: %w",
			domain.NewInvalidInput("temperature", opts.Temperature))
	}
	if opts.MaxClusters <= 0 {
		opts.MaxClusters = DefaultSoftOptions().MaxClusters
	}

	switch len(points) {
	case 0:
		return cluster.Result{}, nil
	case 1:
		p := points[0]
		return cluster.Result{
			Centroids:   []cluster.Centroid{{ID: 0, Vector: append([]float32(nil), p.Vector...), Size: 1}},
			Assignments: []cluster.HardAssignment{{PointID: p.ID, ClusterID: 0}},
			Soft:        []cluster.SoftAssignment{{PointID: p.ID, ClusterID: 0, Probability: 1}},
			Converged:   true,
		}, nil
	}

	ds, err := widen(points)
	if err != nil {
		return cluster.Result{}, fmt.Errorf("soft clustering: %w", err)
	}

	k := min(opts.MaxClusters, ds.n())
	var scores []cluster.BICScore
	if opts.UseBIC {
		sel, err := c.selectK(ctx, ds, opts.MaxClusters, opts.MaxIterations)
		if err != nil {
			return cluster.Result{}, fmt.Errorf("soft clustering: %w", err)
		}
		k = sel.BestK
		scores = sel.Scores
	}

	res, err := c.kmeans(ctx, c.callRand(), ds, k, opts.MaxIterations)
	if err != nil {
		return cluster.Result{}, fmt.Errorf("soft clustering: %w", err)
	}

	centroids := make([][]float64, len(res.Centroids))
	for i, ct := range res.Centroids {
		centroids[i] = vector.ToFloat64(ct.Vector)
	}
	res.Soft = memberships(ds, centroids, opts.Temperature, opts.MinProbability)
	res.BICScores = scores
	return res, nil
}

// Memberships computes soft assignments of points against fixed centroids.
func Memberships(
	points []cluster.Point, centroids []cluster.Centroid, temperature, minProbability float64,
) ([]cluster.SoftAssignment, error) {
	if temperature <= 0 || math.IsNaN(temperature) {
		return nil, domain.NewInvalidInput("temperature", temperature)
	}
	if len(points) == 0 || len(centroids) == 0 {
		return nil, nil
	}
	ds, err := widen(points)
	if err != nil {
		return nil, err
	}
	cs := make([][]float64, len(centroids))
	for i, ct := range centroids {
		if len(ct.Vector) != ds.dim {
			return nil, domain.NewDimMismatch(i, ds.dim, len(ct.Vector))
		}
		cs[i] = vector.ToFloat64(ct.Vector)
	}
	return memberships(ds, cs, temperature, minProbability), nil
}

func memberships(ds dataset, centroids [][]float64, temperature, minProbability float64) []cluster.SoftAssignment {
	out := make([]cluster.SoftAssignment, 0, ds.n())
	scores := make([]float64, len(centroids))
	for i, v := range ds.vecs {
		for c, centroid := range centroids {
			scores[c] = -vector.Euclidean(v, centroid) / temperature
		}
		for c, p := range vector.Softmax(scores) {
			if p > 0 && p >= minProbability {
				out = append(out, cluster.SoftAssignment{PointID: ds.ids[i], ClusterID: c, Probability: p})
			}
		}
	}
	return out
}
