package intelligence

import "math"

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1,1]. Vectors of different length, empty vectors and zero vectors have
// similarity 0, so memories stored without an embedding never match.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot(a, b) / (na * nb)
	// Rounding can push parallel vectors just past 1.
	return math.Max(-1, math.Min(1, sim))
}

// NormalizeVector returns v scaled to unit length. A zero vector is
// returned as is.
func NormalizeVector(v []float64) []float64 {
	n := norm(v)
	if n == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
