package values

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const defaultNormalizerEpsilon = 1e-8

// Normalizer standardizes values with a running mean and variance accumulated
// over every batch it has been updated with.
type Normalizer struct {
	count float64
	mean  float64
	m2    float64
	// Epsilon guards the division when the observed variance is zero.
	Epsilon float64
}

// NewNormalizer returns an empty normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{Epsilon: defaultNormalizerEpsilon}
}

// Update merges the statistics of xs into the running estimate.
func (n *Normalizer) Update(xs []float64) {
	if len(xs) == 0 {
		return
	}
	bn := float64(len(xs))
	bMean, bVar := stat.MeanVariance(xs, nil)
	bM2 := 0.0
	if len(xs) > 1 {
		bM2 = bVar * (bn - 1)
	}

	total := n.count + bn
	delta := bMean - n.mean
	n.mean += delta * bn / total
	n.m2 += bM2 + delta*delta*n.count*bn/total
	n.count = total
}

// Mean returns the running mean.
func (n *Normalizer) Mean() float64 {
	return n.mean
}

// StdDev returns the running population standard deviation.
func (n *Normalizer) StdDev() float64 {
	if n.count == 0 {
		return 0
	}
	return math.Sqrt(n.m2 / n.count)
}

// Normalize returns (x - mean) / (std + epsilon) for every x.
func (n *Normalizer) Normalize(xs []float64) []float64 {
	std := n.StdDev() + n.Epsilon
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = (x - n.mean) / std
	}
	return out
}
