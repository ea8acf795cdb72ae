package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/boristopalov/rlcore/pkg/agent"
	"github.com/boristopalov/rlcore/pkg/config"
	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/environment"
	"github.com/boristopalov/rlcore/pkg/network"
	"github.com/boristopalov/rlcore/pkg/policy"
	"github.com/boristopalov/rlcore/pkg/providers"
	"github.com/boristopalov/rlcore/pkg/values"
)

type (
	obs    = environment.Observation
	action = environment.Action
)

// numFeatures is the width of environment.Features.
const numFeatures = 3

var actionNames = []string{"workout", "recovery"}

// newEnvironment returns the episode-limited fitness environment behind a
// recorder of lifetime totals.
func newEnvironment(cfg *config.ExperimentConfig) *environment.Recorder[obs, action] {
	rng := rand.New(rand.NewSource(cfg.Seed))
	fitness := environment.NewFitness(distribution.WithRand(rng))
	return environment.NewRecorder[obs, action](environment.NewStepLimit[obs, action](fitness, cfg.Environment.MaxEpisodeSteps))
}

func runParams(cfg *config.ExperimentConfig) agent.RunParams {
	return agent.RunParams{MaxSteps: cfg.StepsPerIteration, MaxEpisodes: cfg.EpisodesPerIteration}
}

func describe(o obs) string {
	return fmt.Sprintf("fitness %.0f of %.0f needed, fatigue %.0f (collapse at 300, over-rested below -500)", o.Fitness, 1000.0, o.Fatigue)
}

// buildLearner assembles the agent and network named by cfg.Agent.Type.
func buildLearner(ctx context.Context, cfg *config.ExperimentConfig, env core.Environment[obs, action]) (agent.Learner[obs, struct{}, action], error) {
	a := cfg.Agent
	rng := rand.New(rand.NewSource(cfg.Seed + 1))
	netOpts := []network.Option{
		network.WithLearningRate(cfg.Network.LearningRate),
		network.WithRandomInit(rng, cfg.Network.InitScale),
	}
	common := []agent.AgentOption{
		agent.WithDiscountFactor(a.DiscountFactor),
		agent.WithRand(rng),
	}

	switch a.Type {
	case "reinforce":
		net := network.NewLinear[obs, struct{}, action](numFeatures, len(actionNames), environment.Features, netOpts...)
		return learner(agent.NewReinforceAgent[obs, struct{}, action](env, net.Actor(), struct{}{}, append(common,
			agent.WithNormalization(a.Normalize),
			agent.WithEntropyRegularizationWeight(a.EntropyRegularizationWeight))...))

	case "a2c":
		net := network.NewLinear[obs, struct{}, action](numFeatures, len(actionNames), environment.Features, netOpts...)
		return learner(agent.NewA2CAgent[obs, struct{}, action](env, net, struct{}{}, append(common,
			agent.WithNormalization(a.Normalize),
			agent.WithEntropyRegularizationWeight(a.EntropyRegularizationWeight),
			agent.WithValueEstimationLossWeight(a.ValueEstimationLossWeight),
			agent.WithAdvantageFunction(advantageFunction(a.Advantage)))...))

	case "dqn":
		net := network.NewLinearQ[obs, struct{}](numFeatures, len(actionNames), environment.Features, netOpts...)
		return learner(agent.NewDQNAgent[obs, struct{}, action](env, net, struct{}{}, append(common,
			agent.WithEpsilonGreedy(a.EpsilonGreedy),
			agent.WithTargetUpdateForgetFactor(a.TargetUpdateForgetFactor),
			agent.WithTargetUpdatePeriod(a.TargetUpdatePeriod),
			agent.WithTrainSequenceLength(a.TrainSequenceLength),
			agent.WithMaxReplayedSequenceLength(a.MaxReplayedSequenceLength),
			agent.WithTrainStepsPerIteration(a.TrainStepsPerIteration))...))

	case "llm":
		completer, err := providers.New(ctx, providers.Provider(a.Provider))
		if err != nil {
			return nil, err
		}
		prior := policy.NewLLMPrior[obs, struct{}, action](completer, a.Model, actionNames, describe)
		return learner(agent.NewReinforceAgent[obs, struct{}, action](env, prior, struct{}{}, common...))

	default:
		return nil, fmt.Errorf("%w: unknown agent type %q", config.ErrInvalidConfig, a.Type)
	}
}

// learner keeps a failed constructor from yielding a non-nil interface.
func learner[L agent.Learner[obs, struct{}, action]](l L, err error) (agent.Learner[obs, struct{}, action], error) {
	if err != nil {
		return nil, err
	}
	return l, nil
}

func advantageFunction(c config.AdvantageConfig) values.AdvantageFunction {
	if c.Type == "gae" {
		return values.GeneralizedAdvantageEstimation{DiscountFactor: c.DiscountFactor, DiscountWeight: c.DiscountWeight}
	}
	return values.EmpiricalAdvantageEstimation{DiscountFactor: c.DiscountFactor}
}
