package clustering

import (
	"math/rand/v2"

	"github.com/joelhooks/pdf-brain/internal/domain/vector"
)

// seedPlusPlus picks k initial centroids with k-means++: the first uniformly,
// each next one with probability proportional to the squared distance to the
// nearest centroid chosen so far. When every remaining weight is zero (all
// points coincide with a chosen centroid) the pick falls back to uniform.
func seedPlusPlus(rng *rand.Rand, vecs [][]float64, k int) [][]float64 {
	n := len(vecs)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), vecs[rng.IntN(n)]...))

	minDistances := make([]float64, n)
	for i, v := range vecs {
		minDistances[i] = vector.SquaredEuclidean(v, centroids[0])
	}

	for len(centroids) < k {
		var total float64
		for _, d := range minDistances {
			total += d
		}

		selected := -1
		if total > 0 {
			target := rng.Float64() * total
			var cum float64
			for i, d := range minDistances {
				if d == 0 {
					continue
				}
				cum += d
				if cum >= target {
					selected = i
					break
				}
			}
			if selected < 0 {
				// float rounding left target just above the running sum
				for i := n - 1; i >= 0; i-- {
					if minDistances[i] > 0 {
						selected = i
						break
					}
				}
			}
		}
		if selected < 0 {
			selected = rng.IntN(n)
		}

		next := append([]float64(nil), vecs[selected]...)
		centroids = append(centroids, next)
		for i, v := range vecs {
			if d := vector.SquaredEuclidean(v, next); d < minDistances[i] {
				minDistances[i] = d
			}
		}
	}
	return centroids
}
