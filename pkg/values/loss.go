package values

// Loss holds the weighted terms of a policy-gradient objective. Each term is
// already multiplied by its configured weight.
type Loss struct {
	PolicyGradient  float64
	ValueEstimation float64
	Entropy         float64
}

// Total is the scalar a network minimizes.
func (l Loss) Total() float64 {
	return l.PolicyGradient + l.ValueEstimation + l.Entropy
}

// Add returns the term-wise sum of two losses.
func (l Loss) Add(o Loss) Loss {
	return Loss{
		PolicyGradient:  l.PolicyGradient + o.PolicyGradient,
		ValueEstimation: l.ValueEstimation + o.ValueEstimation,
		Entropy:         l.Entropy + o.Entropy,
	}
}

// Scale multiplies every term by f.
func (l Loss) Scale(f float64) Loss {
	return Loss{
		PolicyGradient:  l.PolicyGradient * f,
		ValueEstimation: l.ValueEstimation * f,
		Entropy:         l.Entropy * f,
	}
}
