package distribution

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Softmax maps logits to a probability vector. It is shifted by the log-sum-exp
// of the input so large logits do not overflow.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return []float64{}
	}
	lse := floats.LogSumExp(logits)
	p := make([]float64, len(logits))
	for i, x := range logits {
		p[i] = math.Exp(x - lse)
	}
	return p
}

// LogSoftmax returns log(Softmax(logits)).
func LogSoftmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return []float64{}
	}
	p := make([]float64, len(logits))
	copy(p, logits)
	floats.AddConst(-floats.LogSumExp(logits), p)
	return p
}

// Argmax returns the index of the first maximum element, or false for an empty slice.
func Argmax[T cmp.Ordered](xs []T) (int, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	return slices.Index(xs, slices.Max(xs)), true
}

// Argmin returns the index of the first minimum element, or false for an empty slice.
func Argmin[T cmp.Ordered](xs []T) (int, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	return slices.Index(xs, slices.Min(xs)), true
}
