package environment

import (
	"context"
	"fmt"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/space"
)

const (
	effort         = 100.0
	fitnessGoal    = 1000.0
	fatigueLimit   = 300.0
	fatigueFloor   = -500.0
	effortPenalty  = effort / 1000.0
	goalReward     = 1.0
	overRestReward = -1.0
)

// Action is a training decision in the fitness environment.
type Action int

const (
	Workout Action = iota
	Recovery
)

func (a Action) String() string {
	switch a {
	case Workout:
		return "workout"
	case Recovery:
		return "recovery"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Observation is the athlete's condition.
type Observation struct {
	Fitness float64
	Fatigue float64
}

// ObservationDistribution is the uniform prior over observations.
type ObservationDistribution struct {
	Fitness distribution.Uniform
	Fatigue distribution.Uniform
}

func (d ObservationDistribution) LogProbability(value Observation) float64 {
	return d.Fitness.LogProbability(value.Fitness) + d.Fatigue.LogProbability(value.Fatigue)
}

func (d ObservationDistribution) Entropy() float64 {
	return d.Fitness.Entropy() + d.Fatigue.Entropy()
}

func (d ObservationDistribution) Mode() Observation {
	return Observation{Fitness: d.Fitness.Mode(), Fatigue: d.Fatigue.Mode()}
}

func (d ObservationDistribution) Sample() Observation {
	return Observation{Fitness: d.Fitness.Sample(), Fatigue: d.Fatigue.Sample()}
}

// ObservationSpace bounds fitness to [0, 1000] and fatigue to [-500, 300].
type ObservationSpace struct {
	prior ObservationDistribution
}

func (s ObservationSpace) Distribution() distribution.Distribution[Observation] {
	return s.prior
}

func (s ObservationSpace) Contains(value Observation) bool {
	return value.Fitness >= s.prior.Fitness.Lower && value.Fitness <= s.prior.Fitness.Upper &&
		value.Fatigue >= s.prior.Fatigue.Lower && value.Fatigue <= s.prior.Fatigue.Upper
}

// Fitness is a two-action environment: working out builds fitness and fatigue,
// recovering sheds fatigue. Reaching the fitness goal ends the episode with a
// reward of 1, resting too much ends it with -1, and every other step costs
// 0.1. Fatigue at the limit wipes out all progress.
type Fitness struct {
	observationSpace ObservationSpace
	actionSpace      space.Discrete[Action]
	step             core.Step[Observation]

	// TotalSteps and TotalReward accumulate over every Step call until the
	// caller clears them.
	TotalSteps  int
	TotalReward float64
}

// NewFitness returns a fitness environment at the start of an episode.
func NewFitness(opts ...distribution.Option) *Fitness {
	return &Fitness{
		observationSpace: ObservationSpace{prior: ObservationDistribution{
			Fitness: distribution.NewUniform(0, fitnessGoal, opts...),
			Fatigue: distribution.NewUniform(fatigueFloor, fatigueLimit, opts...),
		}},
		actionSpace: space.NewDiscrete[Action](2, opts...),
		step:        core.Step[Observation]{Kind: core.First},
	}
}

func (e *Fitness) ObservationSpace() space.Space[Observation] {
	return e.observationSpace
}

func (e *Fitness) ActionSpace() space.Space[Action] {
	return e.actionSpace
}

func (e *Fitness) CurrentStep() core.Step[Observation] {
	return e.step
}

func (e *Fitness) Step(ctx context.Context, action Action) (core.Step[Observation], error) {
	if !e.actionSpace.Contains(action) {
		return core.Step[Observation]{}, fmt.Errorf("%w: %v", core.ErrInvalidAction, action)
	}
	if e.step.Kind == core.Last {
		if _, err := e.Reset(ctx); err != nil {
			return core.Step[Observation]{}, err
		}
	}

	obs := &e.step.Observation
	switch action {
	case Workout:
		obs.Fitness += effort
		obs.Fatigue += effort
	case Recovery:
		obs.Fatigue -= effort
	}
	if obs.Fatigue >= fatigueLimit {
		obs.Fitness = 0
		obs.Fatigue = 0
	}

	switch {
	case obs.Fitness >= fitnessGoal:
		e.step.Kind = core.Last
		e.step.Reward = goalReward
	case obs.Fatigue < fatigueFloor:
		e.step.Kind = core.Last
		e.step.Reward = overRestReward
		obs.Fatigue = 0
	default:
		e.step.Kind = core.Transition
		e.step.Reward = -effortPenalty
	}

	e.TotalSteps++
	e.TotalReward += e.step.Reward
	return e.step, nil
}

func (e *Fitness) Reset(ctx context.Context) (core.Step[Observation], error) {
	e.step = core.Step[Observation]{Kind: core.First}
	return e.step, nil
}

// Features maps an observation to the inputs of a linear network.
func Features(o Observation) []float64 {
	return []float64{o.Fitness / fitnessGoal, o.Fatigue / fatigueLimit, 1}
}
