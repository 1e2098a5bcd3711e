package clustering

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
)

// bicEpsilon keeps ln(RSS/n) finite when every point sits on its centroid.
const bicEpsilon = 1e-10

// Selection is the outcome of model selection.
type Selection struct {
	BestK  int
	Scores []cluster.BICScore
}

// SelectK clusters points for every k in 1..min(maxK, n) and returns the k
// with the lowest Bayesian Information Criterion
//
//	BIC(k) = n*ln(RSS/n + 1e-10) + (k*d + k - 1)*ln(n)
//
// Ties keep the smaller k. A k whose clustering fails is recorded as skipped.
func (c *Clusterer) SelectK(
	ctx context.Context, points []cluster.Point, maxK, maxIterations int,
) (Selection, error) {
	if maxK <= 0 {
		return Selection{}, fmt.Errorf("select k: %w", domain.NewInvalidInput("max_k", maxK))
	}
	if len(points) == 0 {
		return Selection{}, fmt.Errorf("select k: %w", domain.NewInvalidInput("points", "empty"))
	}
	ds, err := widen(points)
	if err != nil {
		return Selection{}, fmt.Errorf("select k: %w", err)
	}
	return c.selectK(ctx, ds, maxK, maxIterations)
}

func (c *Clusterer) selectK(ctx context.Context, ds dataset, maxK, maxIterations int) (Selection, error) {
	n := ds.n()
	upper := min(maxK, n)
	rng := c.callRand()

	sel := Selection{Scores: make([]cluster.BICScore, 0, upper)}
	best := math.Inf(1)
	for k := 1; k <= upper; k++ {
		res, err := c.kmeans(ctx, rng, ds, k, maxIterations)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Selection{}, err
			}
			sel.Scores = append(sel.Scores, cluster.BICScore{K: k, Skipped: true})
			continue
		}

		rss := res.RSS()
		score := BIC(n, ds.dim, k, rss)
		sel.Scores = append(sel.Scores, cluster.BICScore{K: k, BIC: score, RSS: rss})
		if score < best {
			best = score
			sel.BestK = k
		}
	}

	if sel.BestK == 0 {
		return Selection{}, fmt.Errorf("select k: %w", domain.NewInvalidInput("max_k", maxK))
	}
	return sel, nil
}

// BIC scores a k-means fit of n points in d dimensions with the given RSS.
func BIC(n, d, k int, rss float64) float64 {
	nf := float64(n)
	params := float64(k*d + k - 1)
	return nf*math.Log(rss/nf+bicEpsilon) + params*math.Log(nf)
}
