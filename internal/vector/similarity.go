package vector

import "math"

// InnerProduct returns the inner product of two vectors, or 0 when their lengths differ.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a, b) / (|a| * |b|). It returns 0 when the lengths
// differ, either vector is empty, or either norm is zero.
func CosineSimilarity(a, b []float32) float64 {
	return cosine(a, b, L2Norm(a))
}

// cosine lets Search compute the query norm once.
func cosine(query, v []float32, queryNorm float64) float64 {
	if len(query) != len(v) || len(query) == 0 {
		return 0
	}
	norm := L2Norm(v)
	if queryNorm == 0 || norm == 0 {
		return 0
	}
	return InnerProduct(query, v) / (queryNorm * norm)
}
