// Package vector holds the numeric kernels shared by clustering, concept
// mapping and retrieval. Embeddings arrive as float32; clustering works on
// float64 copies so centroid updates accumulate without drift.
package vector

import (
	"math"

	"github.com/joelhooks/pdf-brain/internal/domain"
)

// SquaredEuclidean returns the squared L2 distance between a and b.
// Callers guarantee equal lengths (see CheckDims).
func SquaredEuclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Euclidean returns the L2 distance between a and b.
func Euclidean(a, b []float64) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}

// Mean returns the component-wise mean of vs, or nil when vs is empty.
func Mean(vs [][]float64) []float64 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]float64, len(vs[0]))
	for _, v := range vs {
		for i, x := range v {
			out[i] += x
		}
	}
	n := float64(len(vs))
	for i := range out {
		out[i] /= n
	}
	return out
}

// Softmax maps scores to probabilities that sum to 1.
// The maximum is subtracted first so large magnitudes cannot overflow.
func Softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// FrobeniusDiff returns the Frobenius norm of (a - b) for two equally shaped matrices.
func FrobeniusDiff(a, b [][]float64) float64 {
	var sum float64
	for i := range a {
		sum += SquaredEuclidean(a[i], b[i])
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine of the angle between a and b in [-1, 1].
// Mismatched lengths, empty vectors and zero vectors give 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ToFloat64 widens v into a fresh slice.
func ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// ToFloat32 narrows v into a fresh slice.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// CheckDims verifies that every vector has the same non-zero length and returns it.
func CheckDims(vs [][]float32) (int, error) {
	if len(vs) == 0 {
		return 0, domain.NewInvalidInput("vectors", "empty")
	}
	dim := len(vs[0])
	if dim == 0 {
		return 0, domain.NewInvalidInput("vector[0]", "zero-length")
	}
	for i, v := range vs[1:] {
		if len(v) != dim {
			return 0, domain.NewDimMismatch(i+1, dim, len(v))
		}
	}
	return dim, nil
}
