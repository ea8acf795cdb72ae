// Package distribution defines probability laws over action and observation values.
package distribution

import (
	"math"
	"math/rand"
)

// Distribution is a probability law over values of type V.
type Distribution[V any] interface {
	// LogProbability returns the log-likelihood of value.
	LogProbability(value V) float64
	// Entropy returns the entropy of the distribution.
	Entropy() float64
	// Mode returns the most likely value. If several values tie, implementations
	// should pick one of them uniformly at random.
	Mode() V
	// Sample draws a random value.
	Sample() V
}

// Probability returns exp(d.LogProbability(value)).
func Probability[V any](d Distribution[V], value V) float64 {
	return math.Exp(d.LogProbability(value))
}

type options struct {
	rng     *rand.Rand
	entropy EntropyFunc
}

// Option configures a distribution.
type Option func(*options)

// WithRand makes the distribution draw from rng instead of the global source.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// WithEntropy replaces the entropy formula of a categorical distribution.
func WithEntropy(f EntropyFunc) Option {
	return func(o *options) {
		o.entropy = f
	}
}

func newOptions(opts []Option) options {
	o := options{entropy: ExpWeightedEntropy}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func uniform(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}
