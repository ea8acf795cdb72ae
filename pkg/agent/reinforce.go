package agent

import (
	"context"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/values"
)

const defaultDiscountFactor = 0.99

// ReinforceAgent trains a policy network with Monte Carlo policy gradients
// (REINFORCE). Only entries of completed episodes contribute to an update.
type ReinforceAgent[O, S, A any] struct {
	*ProbabilisticAgent[O, S, A]
	Network ActorNetwork[O, S, A]

	discountFactor              float64
	entropyRegularizationWeight float64
	normalizer                  *values.Normalizer
}

// NewReinforceAgent returns an agent acting in env's action space. Returns are
// normalized unless WithNormalization(false) is given.
func NewReinforceAgent[O, S, A any](env core.Environment[O, A], network ActorNetwork[O, S, A], initialState S, opts ...AgentOption) (*ReinforceAgent[O, S, A], error) {
	params := applyOptions(AgentParams{
		DiscountFactor: defaultDiscountFactor,
		Normalize:      true,
	}, opts)
	if err := checkDiscountFactor(params.DiscountFactor); err != nil {
		return nil, err
	}

	a := &ReinforceAgent[O, S, A]{
		Network:                     network,
		discountFactor:              params.DiscountFactor,
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

// Update collects a trajectory with sampled actions and trains on it.
func (a *ReinforceAgent[O, S, A]) Update(ctx context.Context, env core.Environment[O, A], params RunParams, callbacks ...core.StepCallback[O, S, A]) (float64, error) {
	trajectory, err := a.collectTrajectory(ctx, env, params, callbacks)
	if err != nil {
		return 0, err
	}
	return a.UpdateTrajectory(ctx, trajectory)
}

// UpdateTrajectory trains on every entry of a completed episode and returns
// the mean loss. A trajectory without a completed episode is a no-op.
func (a *ReinforceAgent[O, S, A]) UpdateTrajectory(ctx context.Context, trajectory *core.Trajectory[O, S, A]) (float64, error) {
	numEpisodes := trajectory.NumEpisodes()
	if numEpisodes == 0 {
		return 0, nil
	}

	returns := values.DiscountedReturns(a.discountFactor, trajectory.StepKinds(), trajectory.Rewards(), 0)
	mask := trajectory.CompleteEpisodeMask()
	var entries []core.Entry[O, S, A]
	var weights []float64
	for t, complete := range mask {
		if complete {
			entries = append(entries, trajectory.Steps[t])
			weights = append(weights, returns[t])
		}
	}
	if a.normalizer != nil {
		a.normalizer.Update(weights)
		weights = a.normalizer.Normalize(weights)
	}

	scale := 1 / float64(numEpisodes)
	total := 0.0
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		objective := Objective[A]{
			Action:        e.Action,
			Weight:        weights[i] * scale,
			EntropyWeight: a.entropyRegularizationWeight,
		}
		loss, err := a.Network.Update(ctx, core.AgentInput[O, S]{Observation: e.Observation, State: e.State},
			func(ctx context.Context, out ActorOutput[A, S]) (ActorOutput[A, S], error) {
				obj := objective
				obj.Loss = policyLoss(out.ActionDistribution, obj)
				out.Objective = &obj
				return out, nil
			})
		if err != nil {
			return 0, err
		}
		total += loss
	}
	return total / float64(len(entries)), nil
}

// policyLoss computes the policy-gradient and entropy terms for one step.
func policyLoss[A any](d distribution.Distribution[A], obj Objective[A]) values.Loss {
	loss := values.Loss{PolicyGradient: -d.LogProbability(obj.Action) * obj.Weight}
	if obj.EntropyWeight > 0 {
		loss.Entropy = -obj.EntropyWeight * d.Entropy()
	}
	return loss
}
