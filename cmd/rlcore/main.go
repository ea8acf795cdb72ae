package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"

	"github.com/boristopalov/rlcore/pkg/config"
	"github.com/boristopalov/rlcore/pkg/experiment"
	"github.com/boristopalov/rlcore/pkg/messaging"
)

var version = "dev"

type flags struct {
	configPath string
	agentType  string
	iterations int
	outputDir  string
	noPlot     bool
}

func main() {
	var f flags

	rootCmd := &cobra.Command{
		Use:          "rlcore",
		Short:        "rlcore trains and evaluates reinforcement learning agents.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "experiment config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&f.agentType, "agent", "", "agent type: reinforce, a2c, dqn or llm")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train an agent on the fitness environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return train(cmd.Context(), f)
		},
	}
	trainCmd.Flags().IntVarP(&f.iterations, "iterations", "n", 0, "number of training iterations")
	trainCmd.Flags().StringVarP(&f.outputDir, "output", "o", "", "directory for stats and plots")
	trainCmd.Flags().BoolVar(&f.noPlot, "no-plot", false, "skip the HTML training curves")

	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate an untrained or language-model agent greedily",
		RunE: func(cmd *cobra.Command, args []string) error {
			return eval(cmd.Context(), f)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rootCmd.AddCommand(trainCmd, evalCmd, versionCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(f flags) (*config.ExperimentConfig, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(f.configPath); err != nil {
			return nil, err
		}
	} else if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if f.agentType != "" {
		cfg.Agent.Type = f.agentType
	}
	if f.iterations > 0 {
		cfg.Iterations = f.iterations
	}
	if f.outputDir != "" {
		cfg.Logging.Path = f.outputDir
	}
	if f.noPlot {
		cfg.Logging.Plot = false
	}
	return cfg, cfg.Validate()
}

func train(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	env := newEnvironment(cfg)
	learner, err := buildLearner(ctx, cfg, env)
	if err != nil {
		return fmt.Errorf("failed to create %s agent: %w", cfg.Agent.Type, err)
	}

	broker := messaging.NewBroker()
	events := make(chan messaging.Event, cfg.Iterations+4)
	if err := broker.Subscribe("cli", events); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(events)
	}()

	exp := experiment.NewExperiment(learner, env,
		experiment.WithName(cfg.Name),
		experiment.WithIterations(cfg.Iterations),
		experiment.WithRunParams(runParams(cfg)),
		experiment.WithEvaluation(cfg.EvalEpisodes, cfg.EvalEpisodes*cfg.Environment.MaxEpisodeSteps),
		experiment.WithOutputDir(cfg.Logging.Path),
		experiment.WithBroker(broker))
	runErr := exp.Run(ctx)
	broker.Reset()
	close(events)
	<-done
	if runErr != nil {
		fmt.Println(aurora.Red(fmt.Sprintf("experiment %s failed: %v", exp.ID(), runErr)))
		return runErr
	}

	stats, err := exp.Evaluate(ctx)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	printEvaluation(stats)
	fmt.Printf("  environment  %d steps, %d episodes, reward %.2f in total\n", env.TotalSteps, env.TotalEpisodes, env.TotalReward)

	if cfg.Logging.Plot {
		path := filepath.Join(cfg.Logging.Path, fmt.Sprintf("%s_%s_curves.html", cfg.Name, exp.ID()))
		if err := experiment.Plot(cfg.Name, exp.History(), path); err != nil {
			log.Printf("Warning: Failed to plot training curves: %v", err)
		} else {
			fmt.Println(aurora.Blue("training curves written to " + path))
		}
	}
	return nil
}

func eval(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	env := newEnvironment(cfg)
	learner, err := buildLearner(ctx, cfg, env)
	if err != nil {
		return fmt.Errorf("failed to create %s agent: %w", cfg.Agent.Type, err)
	}
	exp := experiment.NewExperiment(learner, env,
		experiment.WithName(cfg.Name),
		experiment.WithEvaluation(cfg.EvalEpisodes, cfg.EvalEpisodes*cfg.Environment.MaxEpisodeSteps))
	stats, err := exp.Evaluate(ctx)
	if err != nil {
		return err
	}
	printEvaluation(stats)
	return nil
}

func printProgress(events <-chan messaging.Event) {
	for e := range events {
		switch e.Kind {
		case messaging.IterationCompleted:
			s := e.Payload.(experiment.IterationStats)
			fmt.Printf("%s loss %s reward %s\n",
				aurora.Bold(fmt.Sprintf("[%4d]", s.Iteration)),
				aurora.Cyan(fmt.Sprintf("%9.4f", s.Loss)),
				aurora.Green(fmt.Sprintf("%8.2f", s.TotalReward)))
		case messaging.ExperimentStarted:
			fmt.Println(aurora.Bold(fmt.Sprintf("training %v (run %s)", e.Payload, e.Source)))
		}
	}
}

func printEvaluation(s experiment.EvaluationStats) {
	fmt.Println(aurora.Bold("evaluation"))
	fmt.Printf("  episodes     %d\n", s.Episodes)
	fmt.Printf("  steps        %d\n", s.Steps)
	fmt.Printf("  mean reward  %s\n", aurora.Green(fmt.Sprintf("%.3f", s.MeanReward)))
}
