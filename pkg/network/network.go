// Package network provides linear function approximators trained by
// stochastic gradient descent. They implement the network contracts the
// agents consume and serve as reference models for small environments.
package network

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/boristopalov/rlcore/pkg/agent"
	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrDimension is returned when a feature vector does not match the width of
// the network.
var ErrDimension = errors.New("feature dimension mismatch")

const defaultLearningRate = 0.01

// FeatureFunc maps an observation to the network's input features.
type FeatureFunc[O any] func(O) []float64

type options struct {
	learningRate float64
	rng          *rand.Rand
	initScale    float64
}

type Option func(*options)

func WithLearningRate(lr float64) Option {
	return func(o *options) {
		o.learningRate = lr
	}
}

// WithRandomInit initializes weights uniformly in [-scale, scale] from rng
// instead of zeros.
func WithRandomInit(rng *rand.Rand, scale float64) Option {
	return func(o *options) {
		o.rng = rng
		o.initScale = scale
	}
}

func newOptions(opts []Option) options {
	o := options{learningRate: defaultLearningRate}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newWeights(rows, cols int, o options) *mat.Dense {
	w := mat.NewDense(rows, cols, nil)
	if o.rng != nil {
		w.Apply(func(_, _ int, _ float64) float64 {
			return (2*o.rng.Float64() - 1) * o.initScale
		}, w)
	}
	return w
}

func featureVector[O any](features FeatureFunc[O], obs O, width int) (*mat.VecDense, error) {
	f := features(obs)
	if len(f) != width {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrDimension, len(f), width)
	}
	return mat.NewVecDense(width, f), nil
}

// Linear is a softmax policy with a linear value head over a shared feature
// vector. Its action distributions report Shannon entropy, the quantity the
// entropy term of Update differentiates. The agent state passes through
// unchanged.
type Linear[O, S any, A ~int] struct {
	features     FeatureFunc[O]
	policy       *mat.Dense
	value        *mat.VecDense
	learningRate float64
}

// NewLinear returns an actor-critic network over numFeatures inputs and
// numActions actions.
func NewLinear[O, S any, A ~int](numFeatures, numActions int, features FeatureFunc[O], opts ...Option) *Linear[O, S, A] {
	o := newOptions(opts)
	return &Linear[O, S, A]{
		features:     features,
		policy:       newWeights(numActions, numFeatures, o),
		value:        mat.NewVecDense(numFeatures, nil),
		learningRate: o.learningRate,
	}
}

func (l *Linear[O, S, A]) forward(input core.AgentInput[O, S]) (agent.ActorCriticOutput[A, S], []float64, *mat.VecDense, error) {
	_, width := l.policy.Dims()
	x, err := featureVector(l.features, input.Observation, width)
	if err != nil {
		return agent.ActorCriticOutput[A, S]{}, nil, nil, err
	}
	var z mat.VecDense
	z.MulVec(l.policy, x)
	logits := mat.Col(nil, 0, &z)
	return agent.ActorCriticOutput[A, S]{
		ActionDistribution: distribution.NewEnumFromLogits[A](logits, distribution.WithEntropy(distribution.ShannonEntropy)),
		Value:              mat.Dot(l.value, x),
		State:              input.State,
	}, logits, x, nil
}

func (l *Linear[O, S, A]) Prediction(ctx context.Context, input core.AgentInput[O, S]) (agent.ActorCriticOutput[A, S], error) {
	out, _, _, err := l.forward(input)
	return out, err
}

// Update takes one gradient step on the objective the loss function attaches.
// Outputs without an objective leave the weights untouched and report zero
// loss.
func (l *Linear[O, S, A]) Update(ctx context.Context, input core.AgentInput[O, S], lossFunc core.LossFunc[agent.ActorCriticOutput[A, S]]) (float64, error) {
	out, logits, x, err := l.forward(input)
	if err != nil {
		return 0, err
	}
	shaped, err := lossFunc(ctx, out)
	if err != nil {
		return 0, err
	}
	obj := shaped.Objective
	if obj == nil {
		return 0, nil
	}
	action := int(obj.Action)
	if action < 0 || action >= len(logits) {
		return 0, fmt.Errorf("%w: %d", core.ErrInvalidAction, action)
	}

	probs := distribution.Softmax(logits)
	grad := make([]float64, len(probs))
	floats.AddScaled(grad, obj.Weight, probs)
	grad[action] -= obj.Weight
	if obj.EntropyWeight > 0 {
		h := distribution.ShannonEntropy(probs)
		for i, p := range probs {
			if p > 0 {
				grad[i] += obj.EntropyWeight * p * (math.Log(p) + h)
			}
		}
	}
	l.policy.RankOne(l.policy, -l.learningRate, mat.NewVecDense(len(grad), grad), x)

	if obj.ValueWeight > 0 {
		g := 2 * obj.ValueWeight * (shaped.Value - obj.ValueTarget)
		l.value.AddScaledVec(l.value, -l.learningRate*g, x)
	}
	return obj.Loss.Total(), nil
}

// Actor returns a view of l that exposes only the policy head.
func (l *Linear[O, S, A]) Actor() *Actor[O, S, A] {
	return &Actor[O, S, A]{linear: l}
}

// Actor is the policy head of a Linear network. Updates never touch the value
// weights since actor objectives carry no value weight.
type Actor[O, S any, A ~int] struct {
	linear *Linear[O, S, A]
}

func (a *Actor[O, S, A]) Prediction(ctx context.Context, input core.AgentInput[O, S]) (agent.ActorOutput[A, S], error) {
	out, err := a.linear.Prediction(ctx, input)
	if err != nil {
		return agent.ActorOutput[A, S]{}, err
	}
	return agent.ActorOutput[A, S]{ActionDistribution: out.ActionDistribution, State: out.State}, nil
}

func (a *Actor[O, S, A]) Update(ctx context.Context, input core.AgentInput[O, S], lossFunc core.LossFunc[agent.ActorOutput[A, S]]) (float64, error) {
	return a.linear.Update(ctx, input, func(ctx context.Context, out agent.ActorCriticOutput[A, S]) (agent.ActorCriticOutput[A, S], error) {
		shaped, err := lossFunc(ctx, agent.ActorOutput[A, S]{ActionDistribution: out.ActionDistribution, State: out.State})
		if err != nil {
			return out, err
		}
		out.ActionDistribution = shaped.ActionDistribution
		out.State = shaped.State
		out.Objective = shaped.Objective
		return out, nil
	})
}
