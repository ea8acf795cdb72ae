package agent

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/space"
)

type ModeKind int

const (
	ModeRandom ModeKind = iota
	ModeGreedy
	ModeEpsilonGreedy
	ModeProbabilistic
)

// Mode selects how an agent turns its action distribution into an action.
type Mode struct {
	Kind ModeKind
	// Epsilon is the exploration probability of ModeEpsilonGreedy.
	Epsilon float64
}

var (
	// Random samples the action space prior without consulting the network.
	Random = Mode{Kind: ModeRandom}
	// Greedy takes the mode of the action distribution.
	Greedy = Mode{Kind: ModeGreedy}
	// Probabilistic samples the action distribution.
	Probabilistic = Mode{Kind: ModeProbabilistic}
)

// EpsilonGreedy explores with probability epsilon and acts greedily otherwise.
func EpsilonGreedy(epsilon float64) Mode {
	return Mode{Kind: ModeEpsilonGreedy, Epsilon: epsilon}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeRandom:
		return "random"
	case ModeGreedy:
		return "greedy"
	case ModeEpsilonGreedy:
		return fmt.Sprintf("epsilon-greedy(%v)", m.Epsilon)
	case ModeProbabilistic:
		return "probabilistic"
	default:
		return fmt.Sprintf("mode(%d)", int(m.Kind))
	}
}

// PolicyFunc computes the action distribution for an input and the state the
// agent carries to its next decision.
type PolicyFunc[O, S, A any] func(ctx context.Context, input core.AgentInput[O, S]) (distribution.Distribution[A], S, error)

// ProbabilisticAgent selects actions from a policy distribution. It owns the
// recurrent state and replaces it on every policy query.
type ProbabilisticAgent[O, S, A any] struct {
	ActionSpace space.Space[A]
	State       S

	policy PolicyFunc[O, S, A]
	rng    *rand.Rand
}

// NewProbabilisticAgent returns an agent acting in actionSpace. A nil rng draws
// exploration variates from the global source.
func NewProbabilisticAgent[O, S, A any](actionSpace space.Space[A], initialState S, policy PolicyFunc[O, S, A], rng *rand.Rand) *ProbabilisticAgent[O, S, A] {
	return &ProbabilisticAgent[O, S, A]{
		ActionSpace: actionSpace,
		State:       initialState,
		policy:      policy,
		rng:         rng,
	}
}

// ActionDistribution queries the policy for step and advances the agent state.
func (p *ProbabilisticAgent[O, S, A]) ActionDistribution(ctx context.Context, step core.Step[O]) (distribution.Distribution[A], error) {
	d, next, err := p.policy(ctx, core.AgentInput[O, S]{Observation: step.Observation, State: p.State})
	if err != nil {
		return nil, err
	}
	p.State = next
	return d, nil
}

// Action picks an action for step. Only the modes that consult the policy
// advance the agent state; an exploring epsilon-greedy draw leaves it alone.
func (p *ProbabilisticAgent[O, S, A]) Action(ctx context.Context, step core.Step[O], mode Mode) (A, error) {
	var zero A
	switch mode.Kind {
	case ModeRandom:
		return space.Sample(p.ActionSpace), nil
	case ModeEpsilonGreedy:
		if p.uniform() < mode.Epsilon {
			return space.Sample(p.ActionSpace), nil
		}
		fallthrough
	case ModeGreedy:
		d, err := p.ActionDistribution(ctx, step)
		if err != nil {
			return zero, err
		}
		return d.Mode(), nil
	case ModeProbabilistic:
		d, err := p.ActionDistribution(ctx, step)
		if err != nil {
			return zero, err
		}
		return d.Sample(), nil
	default:
		return zero, fmt.Errorf("unknown agent mode %v", mode)
	}
}

// Run evaluates the agent in env until params are exhausted. Each callback
// receives a trajectory holding only the latest entry.
func (p *ProbabilisticAgent[O, S, A]) Run(ctx context.Context, env core.Environment[O, A], mode Mode, params RunParams, callbacks ...core.StepCallback[O, S, A]) error {
	return p.collect(ctx, env, mode, params, func(e core.Entry[O, S, A], _ core.Step[O]) *core.Trajectory[O, S, A] {
		return core.NewTrajectory(e)
	}, callbacks)
}

// collect drives the interaction loop shared by evaluation and training.
// record stores each entry and returns the trajectory handed to callbacks.
func (p *ProbabilisticAgent[O, S, A]) collect(
	ctx context.Context,
	env core.Environment[O, A],
	mode Mode,
	params RunParams,
	record func(entry core.Entry[O, S, A], next core.Step[O]) *core.Trajectory[O, S, A],
	callbacks []core.StepCallback[O, S, A],
) error {
	maxSteps, maxEpisodes := params.limits()
	numSteps, numEpisodes := 0, 0
	for numSteps < maxSteps && numEpisodes < maxEpisodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		current := env.CurrentStep()
		state := p.State
		action, err := p.Action(ctx, current, mode)
		if err != nil {
			return err
		}
		next, err := env.Step(ctx, action)
		if err != nil {
			return err
		}
		trajectory := record(core.Entry[O, S, A]{
			StepKind:    next.Kind,
			Observation: current.Observation,
			State:       state,
			Action:      action,
			Reward:      next.Reward,
		}, next)
		for _, callback := range callbacks {
			callback(env, trajectory)
		}
		numSteps++
		if next.Kind == core.Last {
			numEpisodes++
		}
	}
	return nil
}

// collectTrajectory samples actions from the policy and accumulates every entry
// into one trajectory, which callbacks see as it grows.
func (p *ProbabilisticAgent[O, S, A]) collectTrajectory(ctx context.Context, env core.Environment[O, A], params RunParams, callbacks []core.StepCallback[O, S, A]) (*core.Trajectory[O, S, A], error) {
	trajectory := core.NewTrajectory[O, S, A]()
	err := p.collect(ctx, env, Probabilistic, params, func(e core.Entry[O, S, A], _ core.Step[O]) *core.Trajectory[O, S, A] {
		trajectory.Append(e)
		return trajectory
	}, callbacks)
	return trajectory, err
}

func (p *ProbabilisticAgent[O, S, A]) uniform() float64 {
	if p.rng == nil {
		return rand.Float64()
	}
	return p.rng.Float64()
}
