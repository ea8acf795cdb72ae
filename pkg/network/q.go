package network

import (
	"context"
	"fmt"

	"github.com/boristopalov/rlcore/pkg/agent"
	"github.com/boristopalov/rlcore/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// LinearQ estimates one Q value per action as a linear function of the
// features. It can keep target copies of itself for DQN bootstrapping.
type LinearQ[O, S any] struct {
	features     FeatureFunc[O]
	weights      *mat.Dense
	learningRate float64
}

// NewLinearQ returns a Q network over numFeatures inputs and numActions
// actions.
func NewLinearQ[O, S any](numFeatures, numActions int, features FeatureFunc[O], opts ...Option) *LinearQ[O, S] {
	o := newOptions(opts)
	return &LinearQ[O, S]{
		features:     features,
		weights:      newWeights(numActions, numFeatures, o),
		learningRate: o.learningRate,
	}
}

func (q *LinearQ[O, S]) forward(input core.AgentInput[O, S]) ([]float64, *mat.VecDense, error) {
	_, width := q.weights.Dims()
	x, err := featureVector(q.features, input.Observation, width)
	if err != nil {
		return nil, nil, err
	}
	var v mat.VecDense
	v.MulVec(q.weights, x)
	return mat.Col(nil, 0, &v), x, nil
}

func (q *LinearQ[O, S]) Prediction(ctx context.Context, input core.AgentInput[O, S]) (agent.QOutput[S], error) {
	values, _, err := q.forward(input)
	if err != nil {
		return agent.QOutput[S]{}, err
	}
	return agent.QOutput[S]{QValues: values, State: input.State}, nil
}

// Update regresses the Q values toward the targets returned by lossFunc and
// returns the mean squared error before the step.
func (q *LinearQ[O, S]) Update(ctx context.Context, input core.AgentInput[O, S], lossFunc core.LossFunc[agent.QOutput[S]]) (float64, error) {
	values, x, err := q.forward(input)
	if err != nil {
		return 0, err
	}
	target, err := lossFunc(ctx, agent.QOutput[S]{QValues: append([]float64(nil), values...), State: input.State})
	if err != nil {
		return 0, err
	}
	if len(target.QValues) != len(values) {
		return 0, fmt.Errorf("%w: got %d targets for %d actions", ErrDimension, len(target.QValues), len(values))
	}

	n := float64(len(values))
	loss := 0.0
	grad := make([]float64, len(values))
	for i, v := range values {
		d := v - target.QValues[i]
		loss += d * d
		grad[i] = 2 * d / n
	}
	q.weights.RankOne(q.weights, -q.learningRate, mat.NewVecDense(len(grad), grad), x)
	return loss / n, nil
}

func (q *LinearQ[O, S]) Clone() agent.QNetwork[O, S] {
	return &LinearQ[O, S]{
		features:     q.features,
		weights:      mat.DenseCopyOf(q.weights),
		learningRate: q.learningRate,
	}
}

// SoftUpdate blends source's weights into q. A forget factor of 1 copies them.
func (q *LinearQ[O, S]) SoftUpdate(source agent.QNetwork[O, S], forgetFactor float64) error {
	src, ok := source.(*LinearQ[O, S])
	if !ok {
		return fmt.Errorf("cannot sync linear Q network from %T", source)
	}
	var blended mat.Dense
	blended.Scale(forgetFactor, src.weights)
	q.weights.Scale(1-forgetFactor, q.weights)
	q.weights.Add(q.weights, &blended)
	return nil
}

// Weights returns a copy of the weight matrix, one row per action.
func (q *LinearQ[O, S]) Weights() *mat.Dense {
	return mat.DenseCopyOf(q.weights)
}
