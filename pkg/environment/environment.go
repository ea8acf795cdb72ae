// Package environment provides reference environments and wrappers around the
// core.Environment contract.
package environment

import (
	"context"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/space"
)

// StepLimit ends episodes of the wrapped environment after a fixed number of
// steps by rewriting the kind of the final step to Last.
type StepLimit[O, A any] struct {
	env          core.Environment[O, A]
	episodeSteps int
	steps        int
	current      core.Step[O]
}

// NewStepLimit wraps env so no episode runs longer than episodeSteps.
func NewStepLimit[O, A any](env core.Environment[O, A], episodeSteps int) *StepLimit[O, A] {
	return &StepLimit[O, A]{env: env, episodeSteps: episodeSteps, current: env.CurrentStep()}
}

func (s *StepLimit[O, A]) ObservationSpace() space.Space[O] {
	return s.env.ObservationSpace()
}

func (s *StepLimit[O, A]) ActionSpace() space.Space[A] {
	return s.env.ActionSpace()
}

func (s *StepLimit[O, A]) CurrentStep() core.Step[O] {
	return s.current
}

func (s *StepLimit[O, A]) Step(ctx context.Context, action A) (core.Step[O], error) {
	if s.current.Kind == core.Last {
		if _, err := s.Reset(ctx); err != nil {
			return core.Step[O]{}, err
		}
	}
	step, err := s.env.Step(ctx, action)
	if err != nil {
		return core.Step[O]{}, err
	}
	s.steps++
	if step.Kind != core.Last && s.steps >= s.episodeSteps {
		step.Kind = core.Last
	}
	if step.Kind == core.Last {
		s.steps = 0
	}
	s.current = step
	return step, nil
}

func (s *StepLimit[O, A]) Reset(ctx context.Context) (core.Step[O], error) {
	step, err := s.env.Reset(ctx)
	if err != nil {
		return core.Step[O]{}, err
	}
	s.steps = 0
	s.current = step
	return step, nil
}

// Recorder counts the steps taken and rewards collected by the wrapped
// environment across episodes.
type Recorder[O, A any] struct {
	core.Environment[O, A]

	TotalSteps    int
	TotalEpisodes int
	TotalReward   float64
}

// NewRecorder wraps env with zeroed counters.
func NewRecorder[O, A any](env core.Environment[O, A]) *Recorder[O, A] {
	return &Recorder[O, A]{Environment: env}
}

func (r *Recorder[O, A]) Step(ctx context.Context, action A) (core.Step[O], error) {
	step, err := r.Environment.Step(ctx, action)
	if err != nil {
		return step, err
	}
	r.TotalSteps++
	r.TotalReward += step.Reward
	if step.Kind == core.Last {
		r.TotalEpisodes++
	}
	return step, nil
}

// Clear zeroes the counters.
func (r *Recorder[O, A]) Clear() {
	r.TotalSteps = 0
	r.TotalEpisodes = 0
	r.TotalReward = 0
}
