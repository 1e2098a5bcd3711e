package clustering

import (
	"fmt"
	"math/rand/v2"

	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
)

func pts(vs ...[]float32) []cluster.Point {
	out := make([]cluster.Point, len(vs))
	for i, v := range vs {
		out[i] = cluster.Point{ID: fmt.Sprintf("p%d", i), Vector: v}
	}
	return out
}

// blobs returns perBlob points around each center with the given spread.
func blobs(seed uint64, centers [][]float32, perBlob int, spread float64) []cluster.Point {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]cluster.Point, 0, len(centers)*perBlob)
	for b, c := range centers {
		for i := range perBlob {
			v := make([]float32, len(c))
			for d := range c {
				v[d] = c[d] + float32(rng.NormFloat64()*spread)
			}
			out = append(out, cluster.Point{ID: fmt.Sprintf("b%d-%d", b, i), Vector: v})
		}
	}
	return out
}

func labelsByID(res cluster.Result) map[string]int {
	out := make(map[string]int, len(res.Assignments))
	for _, a := range res.Assignments {
		out[a.PointID] = a.ClusterID
	}
	return out
}

var fiveCenters = [][]float32{
	{0, 0}, {50, 0}, {0, 50}, {50, 50}, {25, 100},
}
