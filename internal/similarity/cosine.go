// Package similarity scores embedding vectors against each other.
package similarity

import "math"

// Unscored marks a pair of vectors that cannot be compared. It sorts below every
// valid cosine score, which lives in [-1, 1].
const Unscored = -2.0

// Cosine returns the cosine similarity of a and b.
// Empty vectors, mismatched lengths and zero-norm vectors yield Unscored.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return Unscored
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return Unscored
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(score) {
		return Unscored
	}
	return math.Max(-1, math.Min(1, score))
}

// IsScored reports whether s is a real similarity rather than the Unscored sentinel.
func IsScored(s float64) bool {
	return s >= -1
}
