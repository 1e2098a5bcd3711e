package clustering

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
	"github.com/joelhooks/pdf-brain/internal/domain/vector"
)

const (
	// DefaultMaxIterations applies when a caller passes maxIterations <= 0.
	DefaultMaxIterations = 100
	// DefaultBatchSize applies when a caller passes batchSize <= 0.
	DefaultBatchSize = 100

	// parallelWork is the n*k product above which assignment fans out to workers.
	parallelWork = 1 << 14
)

// Clusterer runs k-means variants over labelled embeddings.
// One Clusterer may be shared across goroutines: every call derives its own
// random source and working arrays.
type Clusterer struct {
	mu      sync.Mutex
	rng     *rand.Rand
	workers int
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithSeed makes runs reproducible: the same seed and the same call sequence
// give the same centroids.
func WithSeed(seed uint64) Option {
	return func(c *Clusterer) {
		c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithWorkers bounds the goroutines used by the assignment step.
func WithWorkers(n int) Option {
	return func(c *Clusterer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New creates a Clusterer seeded from the clock unless WithSeed is given.
func New(opts ...Option) *Clusterer {
	now := uint64(time.Now().UnixNano()) //nolint:gosec // seed only
	c := &Clusterer{
		rng:     rand.New(rand.NewPCG(now, now>>17)),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// callRand derives an independent random source for one call.
func (c *Clusterer) callRand() *rand.Rand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rand.New(rand.NewPCG(c.rng.Uint64(), c.rng.Uint64()))
}

// dataset is the float64 working copy of one call's input.
type dataset struct {
	ids  []string
	vecs [][]float64
	dim  int
}

func (d dataset) n() int { return len(d.vecs) }

// prepare validates points and k and widens the vectors.
func prepare(points []cluster.Point, k int) (dataset, error) {
	if len(points) == 0 {
		return dataset{}, domain.NewInvalidInput("points", "empty")
	}
	if k <= 0 || k > len(points) {
		return dataset{}, domain.NewInvalidInput("k", k)
	}
	return widen(points)
}

func widen(points []cluster.Point) (dataset, error) {
	raw := make([][]float32, len(points))
	for i, p := range points {
		raw[i] = p.Vector
	}
	dim, err := vector.CheckDims(raw)
	if err != nil {
		return dataset{}, err
	}

	ds := dataset{
		ids:  make([]string, len(points)),
		vecs: make([][]float64, len(points)),
		dim:  dim,
	}
	for i, p := range points {
		ds.ids[i] = p.ID
		ds.vecs[i] = vector.ToFloat64(p.Vector)
	}
	return ds, nil
}

// result converts final labels and centroids into domain values.
func (d dataset) result(centroids [][]float64, labels []int, dists []float64) cluster.Result {
	sizes := make([]int, len(centroids))
	assignments := make([]cluster.HardAssignment, d.n())
	for i, c := range labels {
		sizes[c]++
		assignments[i] = cluster.HardAssignment{
			PointID:   d.ids[i],
			ClusterID: c,
			Distance:  dists[i],
		}
	}

	out := make([]cluster.Centroid, len(centroids))
	for c, v := range centroids {
		out[c] = cluster.Centroid{ID: c, Vector: vector.ToFloat32(v), Size: sizes[c]}
	}
	return cluster.Result{Centroids: out, Assignments: assignments}
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
