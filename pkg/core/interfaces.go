package core

import (
	"context"
	"errors"

	"github.com/boristopalov/rlcore/pkg/space"
)

// ErrInvalidAction is returned by environments handed an action outside their
// action space. It signals a programming error and is never retried.
var ErrInvalidAction = errors.New("invalid action")

// Environment is a Markov decision process producing steps from actions.
type Environment[O, A any] interface {
	ObservationSpace() space.Space[O]
	ActionSpace() space.Space[A]
	// CurrentStep returns the latest step. Implementations may start a new
	// episode here.
	CurrentStep() Step[O]
	// Step applies action and returns the resulting step.
	Step(ctx context.Context, action A) (Step[O], error)
	// Reset starts a new episode and returns its First step with zero reward.
	Reset(ctx context.Context) (Step[O], error)
}

// LossFunc receives the network's forward output and returns the output the
// network should derive its loss from.
type LossFunc[O any] func(ctx context.Context, output O) (O, error)

// Network is the trainable function approximator an agent consults. Calls from
// one agent are strictly sequential.
type Network[I, O any] interface {
	// Prediction is a pure forward pass.
	Prediction(ctx context.Context, input I) (O, error)
	// Update runs a forward pass, shapes the output with lossFunc, minimizes the
	// resulting loss and returns it.
	Update(ctx context.Context, input I, lossFunc LossFunc[O]) (float64, error)
}

// StepCallback observes the interaction loop after every environment step.
// Callbacks run synchronously in registration order and may mutate both
// arguments.
type StepCallback[O, S, A any] func(env Environment[O, A], trajectory *Trajectory[O, S, A])
