package distribution

import (
	"math"
	"math/rand"
)

// Uniform is the continuous uniform distribution over [Lower, Upper].
type Uniform struct {
	Lower float64
	Upper float64
	rng   *rand.Rand
}

// NewUniform returns a uniform distribution over [lower, upper].
func NewUniform(lower, upper float64, opts ...Option) Uniform {
	o := newOptions(opts)
	return Uniform{Lower: lower, Upper: upper, rng: o.rng}
}

// LogProbability is constant over the support.
func (u Uniform) LogProbability(value float64) float64 {
	return -math.Log(u.Upper - u.Lower)
}

func (u Uniform) Entropy() float64 {
	return math.Log(u.Upper - u.Lower)
}

// Mode returns a fresh sample; every point of the support is a mode.
func (u Uniform) Mode() float64 {
	return u.Sample()
}

func (u Uniform) Sample() float64 {
	return u.Lower + uniform(u.rng)*(u.Upper-u.Lower)
}
