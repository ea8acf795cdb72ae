// Package experiment drives training runs: repeated agent updates with
// per-iteration statistics, greedy evaluation and progress events.
package experiment

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boristopalov/rlcore/pkg/agent"
	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/messaging"
	"github.com/google/uuid"
)

const defaultEvalMaxSteps = 100_000

// IterationStats summarizes one training iteration.
type IterationStats struct {
	Iteration   int
	Loss        float64
	Steps       int
	Episodes    int
	TotalReward float64
	Duration    time.Duration
}

// EvaluationStats summarizes a greedy evaluation run.
type EvaluationStats struct {
	Episodes    int
	Steps       int
	TotalReward float64
	// MeanReward is the mean return per completed episode.
	MeanReward float64
}

type ExperimentParams struct {
	Name         string
	Iterations   int
	RunParams    agent.RunParams
	EvalEpisodes int
	EvalMaxSteps int
	OutputDir    string
	Broker       messaging.Broker
}

type ExperimentOption func(*ExperimentParams)

func WithName(name string) ExperimentOption {
	return func(p *ExperimentParams) {
		p.Name = name
	}
}

func WithIterations(n int) ExperimentOption {
	return func(p *ExperimentParams) {
		p.Iterations = n
	}
}

// WithRunParams bounds the collection phase of every iteration.
func WithRunParams(params agent.RunParams) ExperimentOption {
	return func(p *ExperimentParams) {
		p.RunParams = params
	}
}

func WithEvaluation(episodes, maxSteps int) ExperimentOption {
	return func(p *ExperimentParams) {
		p.EvalEpisodes = episodes
		p.EvalMaxSteps = maxSteps
	}
}

// WithOutputDir makes the experiment write a CSV stats file to dir.
func WithOutputDir(dir string) ExperimentOption {
	return func(p *ExperimentParams) {
		p.OutputDir = dir
	}
}

func WithBroker(b messaging.Broker) ExperimentOption {
	return func(p *ExperimentParams) {
		p.Broker = b
	}
}

// Experiment trains one learner in one environment. Run and Evaluate must not
// be called concurrently; Status and History may be read at any time.
type Experiment[O, S, A any] struct {
	id      string
	params  ExperimentParams
	learner agent.Learner[O, S, A]
	env     core.Environment[O, A]

	mu      sync.RWMutex
	status  core.ExperimentStatus
	history []IterationStats
}

// NewExperiment returns an experiment with a fresh run ID. It defaults to a
// single iteration of 1000 steps.
func NewExperiment[O, S, A any](learner agent.Learner[O, S, A], env core.Environment[O, A], opts ...ExperimentOption) *Experiment[O, S, A] {
	id := uuid.New().String()
	params := ExperimentParams{
		Name:         "experiment",
		Iterations:   1,
		RunParams:    agent.RunParams{MaxSteps: 1000},
		EvalEpisodes: 10,
		EvalMaxSteps: defaultEvalMaxSteps,
	}
	for _, opt := range opts {
		opt(&params)
	}
	return &Experiment[O, S, A]{
		id:      id,
		params:  params,
		learner: learner,
		env:     env,
	}
}

func (e *Experiment[O, S, A]) ID() string {
	return e.id
}

func (e *Experiment[O, S, A]) Name() string {
	return e.params.Name
}

func (e *Experiment[O, S, A]) Status() core.ExperimentStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	status := e.status
	status.Errors = append([]error(nil), e.status.Errors...)
	return status
}

// History returns the stats of every completed iteration.
func (e *Experiment[O, S, A]) History() []IterationStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]IterationStats(nil), e.history...)
}

// StatsPath returns the CSV file Run writes, or "" without an output dir.
func (e *Experiment[O, S, A]) StatsPath() string {
	if e.params.OutputDir == "" {
		return ""
	}
	return filepath.Join(e.params.OutputDir, fmt.Sprintf("%s_%s_stats.csv", e.params.Name, e.id))
}

// Run performs the configured number of training iterations. The environment
// is reset before each one.
func (e *Experiment[O, S, A]) Run(ctx context.Context) (err error) {
	e.mu.Lock()
	e.status.Running = true
	e.status.StartTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.status.Running = false
		e.status.EndTime = time.Now()
		if err != nil {
			e.status.Errors = append(e.status.Errors, err)
		}
		e.mu.Unlock()
		if err != nil {
			e.publish(messaging.ExperimentFailed, err.Error())
		} else {
			e.publish(messaging.ExperimentFinished, e.History())
		}
	}()

	var stats *statsWriter
	if path := e.StatsPath(); path != "" {
		if err := os.MkdirAll(e.params.OutputDir, 0o755); err != nil {
			return err
		}
		stats, err = newStatsWriter(path)
		if err != nil {
			return err
		}
		defer stats.Close()
	}

	log.Printf("Starting experiment %s (%s)", e.params.Name, e.id)
	e.publish(messaging.ExperimentStarted, e.params.Name)

	for i := 1; i <= e.params.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := e.iterate(ctx, i)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}

		e.mu.Lock()
		e.history = append(e.history, s)
		e.mu.Unlock()

		log.Printf("Iteration %d/%d: loss %.4f, %d steps, %d episodes, reward %.2f",
			i, e.params.Iterations, s.Loss, s.Steps, s.Episodes, s.TotalReward)
		if stats != nil {
			if err := stats.Write(s); err != nil {
				log.Printf("Warning: Failed to write to stats file: %v", err)
			}
		}
		e.publish(messaging.IterationCompleted, s)
	}
	return nil
}

func (e *Experiment[O, S, A]) iterate(ctx context.Context, iteration int) (IterationStats, error) {
	start := time.Now()
	s := IterationStats{Iteration: iteration}
	if _, err := e.env.Reset(ctx); err != nil {
		return s, err
	}
	loss, err := e.learner.Update(ctx, e.env, e.params.RunParams, countInto[O, S, A](&s.Steps, &s.Episodes, &s.TotalReward))
	if err != nil {
		return s, err
	}
	s.Loss = loss
	s.Duration = time.Since(start)
	return s, nil
}

// Evaluate runs the learner greedily for the configured number of episodes.
func (e *Experiment[O, S, A]) Evaluate(ctx context.Context) (EvaluationStats, error) {
	var s EvaluationStats
	if _, err := e.env.Reset(ctx); err != nil {
		return s, err
	}
	params := agent.RunParams{MaxEpisodes: e.params.EvalEpisodes, MaxSteps: e.params.EvalMaxSteps}
	if err := e.learner.Run(ctx, e.env, agent.Greedy, params, countInto[O, S, A](&s.Steps, &s.Episodes, &s.TotalReward)); err != nil {
		return s, err
	}
	if s.Episodes > 0 {
		s.MeanReward = s.TotalReward / float64(s.Episodes)
	}
	e.publish(messaging.EvaluationCompleted, s)
	return s, nil
}

// countInto returns a callback accumulating the latest entry of each step.
func countInto[O, S, A any](steps, episodes *int, reward *float64) core.StepCallback[O, S, A] {
	return func(_ core.Environment[O, A], trajectory *core.Trajectory[O, S, A]) {
		entry, ok := trajectory.CurrentStep()
		if !ok {
			return
		}
		*steps++
		*reward += entry.Reward
		if entry.StepKind == core.Last {
			*episodes++
		}
	}
}

func (e *Experiment[O, S, A]) publish(kind messaging.EventKind, payload any) {
	if e.params.Broker == nil {
		return
	}
	err := e.params.Broker.Publish(messaging.Event{
		Source:    e.id,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("Warning: Failed to publish %s event: %v", kind, err)
	}
}
