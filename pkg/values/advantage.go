package values

import (
	"fmt"

	"github.com/boristopalov/rlcore/pkg/core"
)

// AdvantageEstimate pairs advantages, used to train actors, with the discounted
// returns that value networks regress on.
type AdvantageEstimate struct {
	Advantages []float64
	returns    []float64
}

// NewAdvantageEstimate wraps already computed advantages and returns.
func NewAdvantageEstimate(advantages, returns []float64) AdvantageEstimate {
	return AdvantageEstimate{Advantages: advantages, returns: returns}
}

// DiscountedReturns returns the returns computed alongside the advantages.
// Nothing is recomputed.
func (e AdvantageEstimate) DiscountedReturns() []float64 {
	return e.returns
}

// AdvantageFunction estimates advantages for a sequence of steps.
type AdvantageFunction interface {
	Estimate(stepKinds []core.StepKind, rewards, values []float64, finalValue float64) AdvantageEstimate
}

// EmpiricalAdvantageEstimation uses advantage[t] = returns[t] - values[t].
type EmpiricalAdvantageEstimation struct {
	DiscountFactor float64
}

func (e EmpiricalAdvantageEstimation) Estimate(stepKinds []core.StepKind, rewards, values []float64, finalValue float64) AdvantageEstimate {
	checkLengths(stepKinds, rewards, values)
	returns := DiscountedReturns(e.DiscountFactor, stepKinds, rewards, finalValue)
	advantages := make([]float64, len(returns))
	for t := range returns {
		advantages[t] = returns[t] - values[t]
	}
	return NewAdvantageEstimate(advantages, returns)
}

// GeneralizedAdvantageEstimation implements GAE(gamma, lambda) from Schulman et
// al., "High-Dimensional Continuous Control Using Generalized Advantage
// Estimation". DiscountWeight is lambda.
type GeneralizedAdvantageEstimation struct {
	DiscountFactor float64
	DiscountWeight float64
}

func (g GeneralizedAdvantageEstimation) Estimate(stepKinds []core.StepKind, rewards, values []float64, finalValue float64) AdvantageEstimate {
	checkLengths(stepKinds, rewards, values)
	T := len(rewards)
	advantages := make([]float64, T)
	if T == 0 {
		return NewAdvantageEstimate(advantages, []float64{})
	}
	notLast := func(t int) float64 {
		if stepKinds[t] == core.Last {
			return 0
		}
		return 1
	}

	gamma, lambda := g.DiscountFactor, g.DiscountWeight
	advantages[T-1] = rewards[T-1] + gamma*finalValue*notLast(T-1) - values[T-1]
	for t := T - 2; t >= 0; t-- {
		delta := rewards[t] + gamma*values[t+1]*notLast(t) - values[t]
		advantages[t] = delta + lambda*gamma*notLast(t)*advantages[t+1]
	}

	returns := DiscountedReturns(gamma, stepKinds, rewards, finalValue)
	return NewAdvantageEstimate(advantages, returns)
}

func checkLengths(stepKinds []core.StepKind, rewards, values []float64) {
	if len(stepKinds) != len(rewards) || len(rewards) != len(values) {
		panic(fmt.Sprintf("values: length mismatch: %d step kinds, %d rewards, %d values",
			len(stepKinds), len(rewards), len(values)))
	}
}
