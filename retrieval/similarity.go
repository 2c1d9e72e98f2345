// Package retrieval finds craftsman candidates in the vector store and turns
// them into the prompt context.
package retrieval

import "math"

// CosineSimilarity returns dot(a,b) / (|a| * |b|). It returns 0 when either
// vector is empty, the lengths differ, or either magnitude is zero. The result
// is clamped to [-1, 1].
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0
	}
	return math.Max(-1, math.Min(1, sim))
}
