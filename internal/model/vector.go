// Package model holds the trained artifacts of the prediction pipeline: the
// TF-IDF vectorizer, the logistic classifier and their on-disk format.
package model

import (
	"math"
	"sort"
)

// FeatureVector is a sparse vector over a vocabulary whose size is only known
// once an artifact is loaded.
type FeatureVector struct {
	Dim     int
	Weights map[int]float64
}

// NewFeatureVector returns an all-zero vector of dimension dim.
func NewFeatureVector(dim int) FeatureVector {
	return FeatureVector{Dim: dim, Weights: make(map[int]float64)}
}

// NNZ returns the number of non-zero entries.
func (v FeatureVector) NNZ() int {
	return len(v.Weights)
}

// Get returns the weight at index i.
func (v FeatureVector) Get(i int) float64 {
	return v.Weights[i]
}

// Norm returns the Euclidean norm.
func (v FeatureVector) Norm() float64 {
	var sum float64
	for _, w := range v.Weights {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Indices returns the non-zero indices in ascending order.
func (v FeatureVector) Indices() []int {
	idx := make([]int, 0, len(v.Weights))
	for i := range v.Weights {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Dense expands the vector into a slice of length Dim.
func (v FeatureVector) Dense() []float64 {
	out := make([]float64, v.Dim)
	for i, w := range v.Weights {
		if i >= 0 && i < v.Dim {
			out[i] = w
		}
	}
	return out
}

// Dot returns the inner product with a dense weight slice. Indices are summed
// in ascending order so results do not depend on map iteration.
func (v FeatureVector) Dot(weights []float64) float64 {
	var sum float64
	for _, i := range v.Indices() {
		sum += v.Weights[i] * weights[i]
	}
	return sum
}
