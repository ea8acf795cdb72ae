package distribution

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// EntropyFunc computes an entropy value from a probability vector.
type EntropyFunc func(probabilities []float64) float64

// ExpWeightedEntropy returns sum(-p * exp(p)). This is the formula categorical
// distributions have always reported; it is not Shannon entropy.
func ExpWeightedEntropy(probabilities []float64) float64 {
	var h float64
	for _, p := range probabilities {
		h -= p * math.Exp(p)
	}
	return h
}

// ShannonEntropy returns sum(-p * log(p)), treating 0*log(0) as 0.
func ShannonEntropy(probabilities []float64) float64 {
	var h float64
	for _, p := range probabilities {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// Categorical is a discrete distribution over the indices of a probability vector.
type Categorical struct {
	probabilities []float64
	rng           *rand.Rand
	entropy       EntropyFunc
}

// NewCategorical builds a categorical distribution from non-negative probabilities.
// The slice is copied.
func NewCategorical(probabilities []float64, opts ...Option) Categorical {
	o := newOptions(opts)
	p := make([]float64, len(probabilities))
	copy(p, probabilities)
	return Categorical{probabilities: p, rng: o.rng, entropy: o.entropy}
}

// NewCategoricalFromLogits builds a categorical distribution from unnormalized logits.
func NewCategoricalFromLogits(logits []float64, opts ...Option) Categorical {
	o := newOptions(opts)
	return Categorical{probabilities: Softmax(logits), rng: o.rng, entropy: o.entropy}
}

// Probabilities returns a copy of the probability vector.
func (c Categorical) Probabilities() []float64 {
	p := make([]float64, len(c.probabilities))
	copy(p, c.probabilities)
	return p
}

// Len returns the number of categories.
func (c Categorical) Len() int {
	return len(c.probabilities)
}

func (c Categorical) LogProbability(value int) float64 {
	return math.Log(c.probabilities[value])
}

func (c Categorical) Entropy() float64 {
	if c.entropy == nil {
		return ExpWeightedEntropy(c.probabilities)
	}
	return c.entropy(c.probabilities)
}

// Mode returns the index of the largest probability. Ties resolve to the first
// index rather than a random one.
func (c Categorical) Mode() int {
	if len(c.probabilities) == 0 {
		return 0
	}
	return floats.MaxIdx(c.probabilities)
}

// Sample draws u in [0, sum(p)) and returns the first index whose running sum
// exceeds u.
func (c Categorical) Sample() int {
	sum := floats.Sum(c.probabilities)
	u := uniform(c.rng) * sum
	var accum float64
	for i, p := range c.probabilities {
		accum += p
		if u < accum {
			return i
		}
	}
	// floating point error can leave u past the final running sum
	return len(c.probabilities) - 1
}

// Enum is a categorical distribution over an enumerated value type whose
// values are the indices 0..n-1.
type Enum[A ~int] struct {
	Categorical
}

// NewEnum builds an Enum from probabilities indexed by action value.
func NewEnum[A ~int](probabilities []float64, opts ...Option) Enum[A] {
	return Enum[A]{NewCategorical(probabilities, opts...)}
}

// NewEnumFromLogits builds an Enum from logits indexed by action value.
func NewEnumFromLogits[A ~int](logits []float64, opts ...Option) Enum[A] {
	return Enum[A]{NewCategoricalFromLogits(logits, opts...)}
}

func (e Enum[A]) LogProbability(value A) float64 {
	return e.Categorical.LogProbability(int(value))
}

func (e Enum[A]) Mode() A {
	return A(e.Categorical.Mode())
}

func (e Enum[A]) Sample() A {
	return A(e.Categorical.Sample())
}
