package facematch

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two embeddings differ in length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity computes dot(a,b) / (|a| * |b|) accumulated in float64.
// Returns 0 when either vector has zero norm. The result is not clamped,
// callers that threshold it should pass it through Clamp first.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Clamp limits a similarity to [-1, 1] to absorb floating point drift.
func Clamp(similarity float64) float64 {
	if similarity > 1 {
		return 1
	}
	if similarity < -1 {
		return -1
	}
	return similarity
}

// CosineDistance returns 1 - clamped similarity, in [0, 2].
// Invalid input (length mismatch, empty or zero vectors) yields the maximum distance.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 {
		return 2.0
	}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 2.0
	}
	if sim == 0 && (isZero(a) || isZero(b)) {
		return 2.0
	}
	return 1 - Clamp(sim)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// ValidEmbedding reports whether every component is a finite number.
func ValidEmbedding(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
