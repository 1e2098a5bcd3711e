package clustering

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelhooks/pdf-brain/internal/domain"
	"github.com/joelhooks/pdf-brain/internal/domain/cluster"
)

func TestCluster_FourPoints(t *testing.T) {
	c := New(WithSeed(42))
	points := pts([]float32{1, 0}, []float32{0.9, 0.1}, []float32{0, 1}, []float32{0.1, 0.9})

	res, err := c.Cluster(context.Background(), points, 2, 0)
	require.NoError(t, err)
	require.Len(t, res.Centroids, 2)
	require.Len(t, res.Assignments, 4)

	labels := labelsByID(res)
	assert.Equal(t, labels["p0"], labels["p1"])
	assert.Equal(t, labels["p2"], labels["p3"])
	assert.NotEqual(t, labels["p0"], labels["p2"])
	assert.True(t, res.Converged)
}

func TestCluster_ShapeInvariants(t *testing.T) {
	c := New(WithSeed(7))
	points := blobs(1, fiveCenters, 20, 1)

	for _, k := range []int{1, 3, 5, 8} {
		res, err := c.Cluster(context.Background(), points, k, 50)
		require.NoError(t, err)
		assert.Len(t, res.Centroids, k)
		require.Len(t, res.Assignments, len(points))
		for i, a := range res.Assignments {
			assert.Equal(t, points[i].ID, a.PointID, "assignments keep input order")
			assert.GreaterOrEqual(t, a.ClusterID, 0)
			assert.Less(t, a.ClusterID, k)
		}
		total := 0
		for _, ct := range res.Centroids {
			total += ct.Size
		}
		assert.Equal(t, len(points), total)
	}
}

func TestCluster_SameSeedSameAssignment(t *testing.T) {
	points := blobs(3, fiveCenters, 30, 2)

	first, err := New(WithSeed(99)).Cluster(context.Background(), points, 5, 0)
	require.NoError(t, err)
	second, err := New(WithSeed(99)).Cluster(context.Background(), points, 5, 0)
	require.NoError(t, err)

	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Centroids, second.Centroids)
}

func TestCluster_ParallelMatchesSequential(t *testing.T) {
	points := blobs(5, fiveCenters, 800, 2)

	seq, err := New(WithSeed(11), WithWorkers(1)).Cluster(context.Background(), points, 5, 0)
	require.NoError(t, err)
	par, err := New(WithSeed(11), WithWorkers(4)).Cluster(context.Background(), points, 5, 0)
	require.NoError(t, err)

	assert.Equal(t, seq.Assignments, par.Assignments)
}

func TestCluster_InvalidInput(t *testing.T) {
	c := New(WithSeed(1))
	ctx := context.Background()

	tests := []struct {
		name   string
		points []cluster.Point
		k      int
	}{
		{"empty points", nil, 1},
		{"zero k", pts([]float32{1, 2}), 0},
		{"negative k", pts([]float32{1, 2}), -1},
		{"k exceeds n", pts([]float32{1, 2}, []float32{3, 4}), 3},
		{"dimension mismatch", pts([]float32{1, 2, 3}, []float32{1, 2}), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Cluster(ctx, tt.points, tt.k, 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestCluster_DuplicatePoints(t *testing.T) {
	c := New(WithSeed(5))
	points := pts([]float32{1, 1}, []float32{1, 1}, []float32{1, 1})

	res, err := c.Cluster(context.Background(), points, 3, 0)
	require.NoError(t, err)
	assert.Len(t, res.Centroids, 3)

	empty := 0
	for _, ct := range res.Centroids {
		if ct.Size == 0 {
			empty++
		}
	}
	assert.Equal(t, 2, empty, "identical points collapse into one cluster; the others stay empty")
}

func TestCluster_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Cluster(ctx, pts([]float32{1}, []float32{2}), 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeedPlusPlus_DistinctSeeds(t *testing.T) {
	c := New(WithSeed(2))
	ds, err := widen(blobs(2, fiveCenters, 10, 0.5))
	require.NoError(t, err)

	seeds := seedPlusPlus(c.callRand(), ds.vecs, 5)
	require.Len(t, seeds, 5)
	for i := range seeds {
		for j := i + 1; j < len(seeds); j++ {
			assert.NotEqual(t, seeds[i], seeds[j])
		}
	}
}

func TestUpdateCentroids_EmptyClusterKeepsCentroid(t *testing.T) {
	vecs := [][]float64{{0, 0}, {2, 2}}
	labels := []int{0, 0}
	centroids := [][]float64{{5, 5}, {9, 9}}
	sums := [][]float64{{0, 0}, {0, 0}}
	counts := make([]int, 2)

	updateCentroids(vecs, labels, centroids, sums, counts)

	assert.Equal(t, []float64{1, 1}, centroids[0])
	assert.Equal(t, []float64{9, 9}, centroids[1], "no re-seeding of an empty cluster")
	assert.Equal(t, []int{2, 0}, counts)
}
