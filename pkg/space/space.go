// Package space defines sampling domains for observations and actions.
package space

import (
	"github.com/boristopalov/rlcore/pkg/distribution"
)

// Space is a domain of values paired with a prior distribution over it.
type Space[V any] interface {
	// Distribution returns the prior used when sampling from the space.
	Distribution() distribution.Distribution[V]
	// Contains reports whether value belongs to the space.
	Contains(value V) bool
}

// Sample draws a value from the space's prior.
func Sample[V any](s Space[V]) V {
	return s.Distribution().Sample()
}

// Discrete is the space of enumerated values 0..n-1 with a uniform prior.
type Discrete[A ~int] struct {
	n     int
	prior distribution.Enum[A]
}

// NewDiscrete returns a discrete space of n values.
func NewDiscrete[A ~int](n int, opts ...distribution.Option) Discrete[A] {
	p := make([]float64, n)
	for i := range p {
		p[i] = 1 / float64(n)
	}
	return Discrete[A]{n: n, prior: distribution.NewEnum[A](p, opts...)}
}

// N returns the number of values in the space.
func (d Discrete[A]) N() int {
	return d.n
}

func (d Discrete[A]) Distribution() distribution.Distribution[A] {
	return d.prior
}

func (d Discrete[A]) Contains(value A) bool {
	return int(value) >= 0 && int(value) < d.n
}

// Interval is the closed real interval [Lower, Upper] with a uniform prior.
type Interval struct {
	prior distribution.Uniform
}

// NewInterval returns the interval [lower, upper].
func NewInterval(lower, upper float64, opts ...distribution.Option) Interval {
	return Interval{prior: distribution.NewUniform(lower, upper, opts...)}
}

func (i Interval) Distribution() distribution.Distribution[float64] {
	return i.prior
}

func (i Interval) Contains(value float64) bool {
	return value >= i.prior.Lower && value <= i.prior.Upper
}
