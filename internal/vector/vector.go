// Package vector provides the similarity math shared by the response cache
// and the pathway generator. Use these functions instead of implementing
// your own so every component scores similarity the same way.
package vector

import "math"

// CosineSimilarity calculates cosine similarity between two float32 vectors.
// Returns a value in [-1, 1] where 1 = identical, 0 = orthogonal.
// Uses float64 accumulation for precision even with float32 inputs.
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProd, normA, normB float64
	for i := range a {
		dotProd += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProd / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize returns a normalized copy of the vector. The input is not
// modified. A zero vector normalizes to a zero vector of the same length.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	normalized := make([]float32, len(vec))
	if norm == 0 {
		return normalized
	}
	inv := 1.0 / math.Sqrt(norm)
	for i, v := range vec {
		normalized[i] = float32(float64(v) * inv)
	}
	return normalized
}
