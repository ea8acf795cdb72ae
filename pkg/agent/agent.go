// Package agent implements the probabilistic action-selection loop and the
// REINFORCE, advantage actor-critic and deep Q-network learners built on it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/values"
)

// ErrInvalidConfig is returned by constructors handed parameters that violate
// an agent's preconditions.
var ErrInvalidConfig = errors.New("invalid agent config")

// Learner is an agent that can be evaluated and trained against an environment.
type Learner[O, S, A any] interface {
	Run(ctx context.Context, env core.Environment[O, A], mode Mode, params RunParams, callbacks ...core.StepCallback[O, S, A]) error
	Update(ctx context.Context, env core.Environment[O, A], params RunParams, callbacks ...core.StepCallback[O, S, A]) (float64, error)
}

// RunParams bound an interaction loop. Non-positive limits are unbounded.
type RunParams struct {
	MaxSteps    int
	MaxEpisodes int
}

func (p RunParams) limits() (int, int) {
	maxSteps, maxEpisodes := p.MaxSteps, p.MaxEpisodes
	if maxSteps <= 0 {
		maxSteps = math.MaxInt
	}
	if maxEpisodes <= 0 {
		maxEpisodes = math.MaxInt
	}
	return maxSteps, maxEpisodes
}

type AgentParams struct {
	DiscountFactor              float64
	EntropyRegularizationWeight float64
	// Normalize standardizes returns (REINFORCE) or advantages (A2C) with a
	// streaming normalizer before they weight the policy gradient.
	Normalize                 bool
	AdvantageFunction         values.AdvantageFunction
	ValueEstimationLossWeight float64

	EpsilonGreedy             float64
	TargetUpdateForgetFactor  float64
	TargetUpdatePeriod        int
	TrainSequenceLength       int
	MaxReplayedSequenceLength int
	TrainStepsPerIteration    int

	Rand *rand.Rand
}

type AgentOption func(*AgentParams)

func WithDiscountFactor(f float64) AgentOption {
	return func(p *AgentParams) {
		p.DiscountFactor = f
	}
}

func WithEntropyRegularizationWeight(w float64) AgentOption {
	return func(p *AgentParams) {
		p.EntropyRegularizationWeight = w
	}
}

func WithNormalization(enabled bool) AgentOption {
	return func(p *AgentParams) {
		p.Normalize = enabled
	}
}

func WithAdvantageFunction(f values.AdvantageFunction) AgentOption {
	return func(p *AgentParams) {
		p.AdvantageFunction = f
	}
}

func WithValueEstimationLossWeight(w float64) AgentOption {
	return func(p *AgentParams) {
		p.ValueEstimationLossWeight = w
	}
}

func WithEpsilonGreedy(epsilon float64) AgentOption {
	return func(p *AgentParams) {
		p.EpsilonGreedy = epsilon
	}
}

func WithTargetUpdateForgetFactor(f float64) AgentOption {
	return func(p *AgentParams) {
		p.TargetUpdateForgetFactor = f
	}
}

func WithTargetUpdatePeriod(n int) AgentOption {
	return func(p *AgentParams) {
		p.TargetUpdatePeriod = n
	}
}

func WithTrainSequenceLength(n int) AgentOption {
	return func(p *AgentParams) {
		p.TrainSequenceLength = n
	}
}

func WithMaxReplayedSequenceLength(n int) AgentOption {
	return func(p *AgentParams) {
		p.MaxReplayedSequenceLength = n
	}
}

func WithTrainStepsPerIteration(n int) AgentOption {
	return func(p *AgentParams) {
		p.TrainStepsPerIteration = n
	}
}

// WithRand makes exploration draws and replay sampling use rng.
func WithRand(rng *rand.Rand) AgentOption {
	return func(p *AgentParams) {
		p.Rand = rng
	}
}

func applyOptions(params AgentParams, opts []AgentOption) AgentParams {
	for _, opt := range opts {
		opt(&params)
	}
	return params
}

func checkDiscountFactor(f float64) error {
	if f < 0 || f > 1 {
		return fmt.Errorf("%w: discount factor %v must be in [0, 1]", ErrInvalidConfig, f)
	}
	return nil
}
