package agent

import (
	"context"
	"fmt"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/values"
)

const (
	defaultAdvantageDiscountFactor   = 0.9
	defaultValueEstimationLossWeight = 0.2
)

// A2CAgent is an advantage actor-critic learner.
type A2CAgent[O, S, A any] struct {
	*ProbabilisticAgent[O, S, A]
	Network ActorCriticNetwork[O, S, A]

	advantageFunction           values.AdvantageFunction
	valueEstimationLossWeight   float64
	entropyRegularizationWeight float64
	normalizer                  *values.Normalizer
}

// NewA2CAgent returns an actor-critic agent. It defaults to empirical advantage
// estimation with a discount factor of 0.9 and normalized advantages.
func NewA2CAgent[O, S, A any](env core.Environment[O, A], network ActorCriticNetwork[O, S, A], initialState S, opts ...AgentOption) (*A2CAgent[O, S, A], error) {
	params := applyOptions(AgentParams{
		AdvantageFunction:         values.EmpiricalAdvantageEstimation{DiscountFactor: defaultAdvantageDiscountFactor},
		Normalize:                 true,
		ValueEstimationLossWeight: defaultValueEstimationLossWeight,
	}, opts)
	if params.AdvantageFunction == nil {
		return nil, fmt.Errorf("%w: missing advantage function", ErrInvalidConfig)
	}
	if params.ValueEstimationLossWeight < 0 || params.EntropyRegularizationWeight < 0 {
		return nil, fmt.Errorf("%w: loss weights must be non-negative", ErrInvalidConfig)
	}

	a := &A2CAgent[O, S, A]{
		Network:                     network,
		advantageFunction:           params.AdvantageFunction,
		valueEstimationLossWeight:   params.ValueEstimationLossWeight,
		entropyRegularizationWeight: params.EntropyRegularizationWeight,
	}
	if params.Normalize {
		a.normalizer = values.NewNormalizer()
	}
	a.ProbabilisticAgent = NewProbabilisticAgent(env.ActionSpace(), initialState,
		func(ctx context.Context, input core.AgentInput[O, S]) (distribution.Distribution[A], S, error) {
			out, err := a.Network.Prediction(ctx, input)
			if err != nil {
				var zero S
				return nil, zero, err
			}
			return out.ActionDistribution, out.State, nil
		}, params.Rand)
	return a, nil
}

func (a *A2CAgent[O, S, A]) Update(ctx context.Context, env core.Environment[O, A], params RunParams, callbacks ...core.StepCallback[O, S, A]) (float64, error) {
	trajectory, err := a.collectTrajectory(ctx, env, params, callbacks)
	if err != nil {
		return 0, err
	}
	return a.UpdateTrajectory(ctx, trajectory)
}

// UpdateTrajectory trains on all but the last entry of trajectory, which only
// provides the final value estimate. It returns the mean loss.
func (a *A2CAgent[O, S, A]) UpdateTrajectory(ctx context.Context, trajectory *core.Trajectory[O, S, A]) (float64, error) {
	n := trajectory.Len() - 1
	if n < 1 {
		return 0, nil
	}

	estimates := make([]float64, n+1)
	for t, e := range trajectory.Steps {
		out, err := a.Network.Prediction(ctx, core.AgentInput[O, S]{Observation: e.Observation, State: e.State})
		if err != nil {
			return 0, err
		}
		estimates[t] = out.Value
	}

	estimate := a.advantageFunction.Estimate(
		trajectory.StepKinds()[:n],
		trajectory.Rewards()[:n],
		estimates[:n],
		estimates[n],
	)
	advantages := estimate.Advantages
	if a.normalizer != nil {
		a.normalizer.Update(advantages)
		advantages = a.normalizer.Normalize(advantages)
	}
	returns := estimate.DiscountedReturns()

	total := 0.0
	for t, e := range trajectory.Steps[:n] {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		objective := Objective[A]{
			Action:        e.Action,
			Weight:        advantages[t],
			EntropyWeight: a.entropyRegularizationWeight,
			ValueTarget:   returns[t],
			ValueWeight:   a.valueEstimationLossWeight,
		}
		loss, err := a.Network.Update(ctx, core.AgentInput[O, S]{Observation: e.Observation, State: e.State},
			func(ctx context.Context, out ActorCriticOutput[A, S]) (ActorCriticOutput[A, S], error) {
				obj := objective
				obj.Loss = policyLoss(out.ActionDistribution, obj)
				diff := out.Value - obj.ValueTarget
				obj.Loss.ValueEstimation = obj.ValueWeight * diff * diff
				out.Objective = &obj
				return out, nil
			})
		if err != nil {
			return 0, err
		}
		total += loss
	}
	return total / float64(n), nil
}
