package store

import (
	"fmt"
	"math"
)

// ValidateVector rejects vectors whose length differs from the model's
// fixed output dimensionality, and vectors containing NaN or Inf. Vectors
// of mismatched length must never be written or compared.
func ValidateVector(vec []float32, dimension int) error {
	if len(vec) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	if dimension > 0 && len(vec) != dimension {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), dimension)
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("embedding contains invalid values")
		}
	}
	return nil
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 for zero-length or zero-norm inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
