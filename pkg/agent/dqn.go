package agent

import (
	"context"
	"fmt"
	"slices"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/memory"
)

const (
	defaultEpsilonGreedy            = 0.1
	defaultTargetUpdateForgetFactor = 1.0
	defaultTargetUpdatePeriod       = 1
	defaultTrainStepsPerIteration   = 1
)

// Transition is a replayed entry together with what followed it.
type Transition[O, S, A any] struct {
	core.Entry[O, S, A]
	NextObservation O
	// NextState is the agent state after choosing Action.
	NextState S
}

// DQNAgent learns Q values from replayed transitions and acts epsilon-greedily
// on them while collecting.
type DQNAgent[O, S any, A ~int] struct {
	*ProbabilisticAgent[O, S, A]
	Network QNetwork[O, S]

	target QNetwork[O, S]
	syncer TargetSyncer[QNetwork[O, S]]
	replay *memory.Memory[Transition[O, S, A]]

	epsilonGreedy            float64
	discountFactor           float64
	targetUpdateForgetFactor float64
	targetUpdatePeriod       int
	trainStepsPerIteration   int
	trainSteps               int
}

// NewDQNAgent returns a DQN agent. WithTrainSequenceLength and
// WithMaxReplayedSequenceLength are required; the train sequence length is
// only checked against the replay capacity. If network implements
// TargetSyncer the agent bootstraps from a synced target copy, otherwise from
// the online network.
func NewDQNAgent[O, S any, A ~int](env core.Environment[O, A], network QNetwork[O, S], initialState S, opts ...AgentOption) (*DQNAgent[O, S, A], error) {
	params := applyOptions(AgentParams{
		DiscountFactor:           defaultDiscountFactor,
		EpsilonGreedy:            defaultEpsilonGreedy,
		TargetUpdateForgetFactor: defaultTargetUpdateForgetFactor,
		TargetUpdatePeriod:       defaultTargetUpdatePeriod,
		TrainStepsPerIteration:   defaultTrainStepsPerIteration,
	}, opts)
	switch {
	case params.TrainSequenceLength <= 0:
		return nil, fmt.Errorf("%w: train sequence length %d must be greater than 0", ErrInvalidConfig, params.TrainSequenceLength)
	case params.TrainSequenceLength >= params.MaxReplayedSequenceLength:
		return nil, fmt.Errorf("%w: train sequence length %d must be less than the max replayed sequence length %d",
			ErrInvalidConfig, params.TrainSequenceLength, params.MaxReplayedSequenceLength)
	case params.TargetUpdateForgetFactor <= 0 || params.TargetUpdateForgetFactor > 1:
		return nil, fmt.Errorf("%w: target update forget factor %v must be in (0, 1]", ErrInvalidConfig, params.TargetUpdateForgetFactor)
	case params.TargetUpdatePeriod <= 0:
		return nil, fmt.Errorf("%w: target update period %d must be greater than 0", ErrInvalidConfig, params.TargetUpdatePeriod)
	}
	if err := checkDiscountFactor(params.DiscountFactor); err != nil {
		return nil, err
	}

	a := &DQNAgent[O, S, A]{
		Network:                  network,
		target:                   network,
		replay:                   memory.NewMemory[Transition[O, S, A]](params.MaxReplayedSequenceLength, params.Rand),
		epsilonGreedy:            params.EpsilonGreedy,
		discountFactor:           params.DiscountFactor,
		targetUpdateForgetFactor: params.TargetUpdateForgetFactor,
		targetUpdatePeriod:       params.TargetUpdatePeriod,
		trainStepsPerIteration:   params.TrainStepsPerIteration,
	}
	if s, ok := network.(TargetSyncer[QNetwork[O, S]]); ok {
		a.target = s.Clone()
		a.syncer, _ = a.target.(TargetSyncer[QNetwork[O, S]])
	}

	rng := params.Rand
	a.ProbabilisticAgent = NewProbabilisticAgent(env.ActionSpace(), initialState,
		func(ctx context.Context, input core.AgentInput[O, S]) (distribution.Distribution[A], S, error) {
			out, err := a.Network.Prediction(ctx, input)
			if err != nil {
				var zero S
				return nil, zero, err
			}
			return distribution.NewEnumFromLogits[A](out.QValues, distribution.WithRand(rng)), out.State, nil
		}, rng)
	return a, nil
}

// ReplayLen returns the number of transitions held for replay.
func (a *DQNAgent[O, S, A]) ReplayLen() int {
	return a.replay.Len()
}

// Update collects transitions into the replay buffer, then trains on
// independent uniform draws from it. It returns the mean loss, or zero when
// the buffer is empty.
func (a *DQNAgent[O, S, A]) Update(ctx context.Context, env core.Environment[O, A], params RunParams, callbacks ...core.StepCallback[O, S, A]) (float64, error) {
	err := a.collect(ctx, env, EpsilonGreedy(a.epsilonGreedy), params,
		func(e core.Entry[O, S, A], next core.Step[O]) *core.Trajectory[O, S, A] {
			a.replay.Store(Transition[O, S, A]{Entry: e, NextObservation: next.Observation, NextState: a.State})
			return core.NewTrajectory(e)
		}, callbacks)
	if err != nil {
		return 0, err
	}

	total, draws := 0.0, 0
	for i := 0; i < a.trainStepsPerIteration; i++ {
		transition, err := a.replay.Sample()
		if err != nil {
			break
		}
		loss, err := a.train(ctx, transition)
		if err != nil {
			return 0, err
		}
		total += loss
		draws++
	}
	if draws == 0 {
		return 0, nil
	}
	return total / float64(draws), nil
}

// UpdateTrajectory trains on the consecutive transitions of trajectory. The
// final entry is used only if it closes an episode.
func (a *DQNAgent[O, S, A]) UpdateTrajectory(ctx context.Context, trajectory *core.Trajectory[O, S, A]) (float64, error) {
	total, n := 0.0, 0
	for t, e := range trajectory.Steps {
		transition := Transition[O, S, A]{Entry: e}
		switch {
		case t+1 < trajectory.Len():
			transition.NextObservation = trajectory.Steps[t+1].Observation
			transition.NextState = trajectory.Steps[t+1].State
		case e.StepKind != core.Last:
			continue
		}
		loss, err := a.train(ctx, transition)
		if err != nil {
			return 0, err
		}
		total += loss
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}

// train regresses Q(observation, action) toward the TD target and syncs the
// target network every targetUpdatePeriod calls.
func (a *DQNAgent[O, S, A]) train(ctx context.Context, transition Transition[O, S, A]) (float64, error) {
	nextQ := 0.0
	if transition.StepKind != core.Last {
		out, err := a.target.Prediction(ctx, core.AgentInput[O, S]{Observation: transition.NextObservation, State: transition.NextState})
		if err != nil {
			return 0, err
		}
		if len(out.QValues) > 0 {
			nextQ = slices.Max(out.QValues)
		}
	}
	targetQ := transition.Reward + a.discountFactor*nextQ

	input := core.AgentInput[O, S]{Observation: transition.Observation, State: transition.State}
	loss, err := a.Network.Update(ctx, input, func(ctx context.Context, out QOutput[S]) (QOutput[S], error) {
		targets := slices.Clone(out.QValues)
		action := int(transition.Action)
		if action < 0 || action >= len(targets) {
			return out, fmt.Errorf("%w: %d for %d q values", core.ErrInvalidAction, action, len(targets))
		}
		targets[action] = targetQ
		return QOutput[S]{QValues: targets, State: out.State}, nil
	})
	if err != nil {
		return 0, err
	}

	a.trainSteps++
	if a.syncer != nil && a.trainSteps%a.targetUpdatePeriod == 0 {
		if err := a.syncer.SoftUpdate(a.Network, a.targetUpdateForgetFactor); err != nil {
			return 0, err
		}
	}
	return loss, nil
}
