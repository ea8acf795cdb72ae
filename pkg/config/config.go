// Package config loads experiment settings from YAML files and RLCORE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type ExperimentConfig struct {
	Name                 string        `yaml:"name"`
	Seed                 int64         `yaml:"seed"`
	Iterations           int           `yaml:"iterations"`
	StepsPerIteration    int           `yaml:"steps_per_iteration"`
	EpisodesPerIteration int           `yaml:"episodes_per_iteration"`
	EvalEpisodes         int           `yaml:"eval_episodes"`
	Agent                AgentConfig   `yaml:"agent"`
	Network              NetworkConfig `yaml:"network"`
	Environment          EnvConfig     `yaml:"environment"`
	Logging              LogConfig     `yaml:"logging"`
}

type AgentConfig struct {
	// Type is one of reinforce, a2c, dqn or llm.
	Type                        string          `yaml:"type"`
	DiscountFactor              float64         `yaml:"discount_factor"`
	EntropyRegularizationWeight float64         `yaml:"entropy_regularization_weight"`
	Normalize                   bool            `yaml:"normalize"`
	Advantage                   AdvantageConfig `yaml:"advantage"`
	ValueEstimationLossWeight   float64         `yaml:"value_estimation_loss_weight"`
	EpsilonGreedy               float64         `yaml:"epsilon_greedy"`
	TargetUpdateForgetFactor    float64         `yaml:"target_update_forget_factor"`
	TargetUpdatePeriod          int             `yaml:"target_update_period"`
	TrainSequenceLength         int             `yaml:"train_sequence_length"`
	MaxReplayedSequenceLength   int             `yaml:"max_replayed_sequence_length"`
	TrainStepsPerIteration      int             `yaml:"train_steps_per_iteration"`
	// Provider and Model select the language model behind the llm agent.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type AdvantageConfig struct {
	// Type is empirical or gae.
	Type           string  `yaml:"type"`
	DiscountFactor float64 `yaml:"discount_factor"`
	DiscountWeight float64 `yaml:"discount_weight"`
}

type NetworkConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	InitScale    float64 `yaml:"init_scale"`
}

type EnvConfig struct {
	Type            string `yaml:"type"`
	MaxEpisodeSteps int    `yaml:"max_episode_steps"`
}

type LogConfig struct {
	// Path is the directory stats and plots are written to.
	Path string `yaml:"path"`
	Plot bool   `yaml:"plot"`
}

var ErrInvalidConfig = errors.New("invalid config")

// Default returns a configuration that trains DQN on the fitness environment.
func Default() *ExperimentConfig {
	return &ExperimentConfig{
		Name:                 "fitness",
		Seed:                 1,
		Iterations:           100,
		StepsPerIteration:    200,
		EpisodesPerIteration: 0,
		EvalEpisodes:         10,
		Agent: AgentConfig{
			Type:                        "dqn",
			DiscountFactor:              0.99,
			EntropyRegularizationWeight: 0,
			Normalize:                   true,
			Advantage: AdvantageConfig{
				Type:           "empirical",
				DiscountFactor: 0.9,
				DiscountWeight: 0.95,
			},
			ValueEstimationLossWeight: 0.2,
			EpsilonGreedy:             0.1,
			TargetUpdateForgetFactor:  1.0,
			TargetUpdatePeriod:        1,
			TrainSequenceLength:       1,
			MaxReplayedSequenceLength: 10000,
			TrainStepsPerIteration:    32,
			Provider:                  "openai",
			Model:                     "gpt-4o-mini",
		},
		Network: NetworkConfig{
			LearningRate: 0.01,
			InitScale:    0.01,
		},
		Environment: EnvConfig{
			Type:            "fitness",
			MaxEpisodeSteps: 200,
		},
		Logging: LogConfig{
			Path: ".",
			Plot: true,
		},
	}
}

// LoadConfig reads path over the defaults, then applies environment
// overrides and validates the result.
func LoadConfig(path string) (*ExperimentConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RLCORE_* environment variables.
func (c *ExperimentConfig) ApplyEnv() error {
	for name, set := range map[string]func(string) error{
		"RLCORE_NAME":       func(v string) error { c.Name = v; return nil },
		"RLCORE_AGENT":      func(v string) error { c.Agent.Type = v; return nil },
		"RLCORE_PROVIDER":   func(v string) error { c.Agent.Provider = v; return nil },
		"RLCORE_MODEL":      func(v string) error { c.Agent.Model = v; return nil },
		"RLCORE_OUTPUT_DIR": func(v string) error { c.Logging.Path = v; return nil },
		"RLCORE_SEED": func(v string) (err error) {
			c.Seed, err = strconv.ParseInt(v, 10, 64)
			return err
		},
		"RLCORE_ITERATIONS": func(v string) (err error) {
			c.Iterations, err = strconv.Atoi(v)
			return err
		},
		"RLCORE_STEPS_PER_ITERATION": func(v string) (err error) {
			c.StepsPerIteration, err = strconv.Atoi(v)
			return err
		},
	} {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := set(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks the settings the experiment driver relies on. Agent
// hyperparameters are checked by the agent constructors.
func (c *ExperimentConfig) Validate() error {
	switch c.Agent.Type {
	case "reinforce", "a2c", "dqn", "llm":
	default:
		return fmt.Errorf("%w: unknown agent type %q", ErrInvalidConfig, c.Agent.Type)
	}
	switch c.Agent.Advantage.Type {
	case "empirical", "gae":
	default:
		return fmt.Errorf("%w: unknown advantage type %q", ErrInvalidConfig, c.Agent.Advantage.Type)
	}
	if c.Environment.Type != "fitness" {
		return fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, c.Environment.Type)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidConfig)
	}
	if c.StepsPerIteration <= 0 && c.EpisodesPerIteration <= 0 {
		return fmt.Errorf("%w: an iteration needs a step or episode limit", ErrInvalidConfig)
	}
	return nil
}
