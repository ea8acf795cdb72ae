// Package values computes discounted returns and advantage estimates over
// collected trajectories.
package values

import (
	"fmt"
	"slices"

	"github.com/boristopalov/rlcore/pkg/core"
)

// DiscountedReturns computes
//
//	R_t = r_t + gamma * R_{t+1}
//
// walking backwards from R_T = finalValue. Whenever the step at t is Last the
// carried return is dropped, so episodes concatenated in one buffer never leak
// value into each other.
func DiscountedReturns(discountFactor float64, stepKinds []core.StepKind, rewards []float64, finalValue float64) []float64 {
	if len(stepKinds) != len(rewards) {
		panic(fmt.Sprintf("values: %d step kinds but %d rewards", len(stepKinds), len(rewards)))
	}
	returns := make([]float64, 0, len(rewards))
	future := finalValue
	for t := len(rewards) - 1; t >= 0; t-- {
		r := rewards[t]
		if stepKinds[t] != core.Last {
			r += discountFactor * future
		}
		returns = append(returns, r)
		future = r
	}
	slices.Reverse(returns)
	return returns
}
