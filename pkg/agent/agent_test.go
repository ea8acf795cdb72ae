package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/boristopalov/rlcore/pkg/distribution"
	"github.com/boristopalov/rlcore/pkg/space"
	"github.com/boristopalov/rlcore/pkg/values"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type move int

const (
	left move = iota
	right
)

var errBoom = errors.New("boom")

// corridor ends every episode after length steps, whatever the action.
type corridor struct {
	length   int
	position int
	steps    int
	current  core.Step[int]
	actions  space.Discrete[move]
	stepErr  error
}

func newCorridor(length int) *corridor {
	return &corridor{
		length:  length,
		current: core.Step[int]{Kind: core.First},
		actions: space.NewDiscrete[move](2, distribution.WithRand(rand.New(rand.NewSource(1)))),
	}
}

func (c *corridor) ObservationSpace() space.Space[int] {
	return space.NewDiscrete[int](c.length + 1)
}

func (c *corridor) ActionSpace() space.Space[move] {
	return c.actions
}

func (c *corridor) CurrentStep() core.Step[int] {
	return c.current
}

func (c *corridor) Step(ctx context.Context, action move) (core.Step[int], error) {
	if c.stepErr != nil {
		return core.Step[int]{}, c.stepErr
	}
	if !c.actions.Contains(action) {
		return core.Step[int]{}, fmt.Errorf("%w: %d", core.ErrInvalidAction, action)
	}
	if c.current.Kind == core.Last {
		c.Reset(ctx)
	}
	c.position++
	c.steps++
	c.current = core.Step[int]{Kind: core.Transition, Observation: c.position, Reward: -0.1}
	if c.position >= c.length {
		c.current.Kind = core.Last
	}
	return c.current, nil
}

func (c *corridor) Reset(ctx context.Context) (core.Step[int], error) {
	c.position = 0
	c.current = core.Step[int]{Kind: core.First}
	return c.current, nil
}

// mockActor returns fixed action probabilities and counts its calls in the
// state it hands back.
type mockActor struct {
	probs       []float64
	value       float64
	err         error
	predictions int
	objectives  []Objective[move]
}

func (m *mockActor) predict(input core.AgentInput[int, int]) (distribution.Distribution[move], int, error) {
	m.predictions++
	if m.err != nil {
		return nil, 0, m.err
	}
	return distribution.NewEnum[move](m.probs), input.State + 1, nil
}

type actorNet struct{ *mockActor }

func (n actorNet) Prediction(ctx context.Context, input core.AgentInput[int, int]) (ActorOutput[move, int], error) {
	d, s, err := n.predict(input)
	return ActorOutput[move, int]{ActionDistribution: d, State: s}, err
}

func (n actorNet) Update(ctx context.Context, input core.AgentInput[int, int], lossFunc core.LossFunc[ActorOutput[move, int]]) (float64, error) {
	out, err := n.Prediction(ctx, input)
	if err != nil {
		return 0, err
	}
	shaped, err := lossFunc(ctx, out)
	if err != nil {
		return 0, err
	}
	n.objectives = append(n.objectives, *shaped.Objective)
	return shaped.Objective.Loss.Total(), nil
}

type actorCriticNet struct{ *mockActor }

func (n actorCriticNet) Prediction(ctx context.Context, input core.AgentInput[int, int]) (ActorCriticOutput[move, int], error) {
	d, s, err := n.predict(input)
	return ActorCriticOutput[move, int]{ActionDistribution: d, Value: n.value, State: s}, err
}

func (n actorCriticNet) Update(ctx context.Context, input core.AgentInput[int, int], lossFunc core.LossFunc[ActorCriticOutput[move, int]]) (float64, error) {
	out, err := n.Prediction(ctx, input)
	if err != nil {
		return 0, err
	}
	shaped, err := lossFunc(ctx, out)
	if err != nil {
		return 0, err
	}
	n.objectives = append(n.objectives, *shaped.Objective)
	return shaped.Objective.Loss.Total(), nil
}

func newTestReinforce(t *testing.T, env core.Environment[int, move], m *mockActor, opts ...AgentOption) *ReinforceAgent[int, int, move] {
	t.Helper()
	a, err := NewReinforceAgent[int, int, move](env, actorNet{m}, 0, opts...)
	if err != nil {
		t.Fatalf("NewReinforceAgent failed: %v", err)
	}
	return a
}

func TestAction(t *testing.T) {
	ctx := context.Background()
	step := core.Step[int]{Kind: core.First}

	t.Run("random mode leaves state alone", func(t *testing.T) {
		m := &mockActor{probs: []float64{0.2, 0.8}}
		a := newTestReinforce(t, newCorridor(3), m)
		for i := 0; i < 50; i++ {
			action, err := a.Action(ctx, step, Random)
			if err != nil {
				t.Fatalf("Action failed: %v", err)
			}
			if action != left && action != right {
				t.Fatalf("Action() = %d, outside the action space", action)
			}
		}
		if a.State != 0 || m.predictions != 0 {
			t.Errorf("state = %d, predictions = %d, want 0 and 0", a.State, m.predictions)
		}
	})

	t.Run("greedy takes the mode and advances state", func(t *testing.T) {
		m := &mockActor{probs: []float64{0.2, 0.8}}
		a := newTestReinforce(t, newCorridor(3), m)
		action, err := a.Action(ctx, step, Greedy)
		if err != nil {
			t.Fatalf("Action failed: %v", err)
		}
		if action != right {
			t.Errorf("Action() = %d, want %d", action, right)
		}
		if a.State != 1 {
			t.Errorf("state = %d, want 1", a.State)
		}
	})

	t.Run("epsilon greedy advances state only when exploiting", func(t *testing.T) {
		m := &mockActor{probs: []float64{0.2, 0.8}}
		a := newTestReinforce(t, newCorridor(3), m, WithRand(rand.New(rand.NewSource(3))))
		for i := 0; i < 20; i++ {
			if _, err := a.Action(ctx, step, EpsilonGreedy(1)); err != nil {
				t.Fatalf("Action failed: %v", err)
			}
		}
		if a.State != 0 {
			t.Errorf("state after exploring = %d, want 0", a.State)
		}
		for i := 0; i < 20; i++ {
			if _, err := a.Action(ctx, step, EpsilonGreedy(0)); err != nil {
				t.Fatalf("Action failed: %v", err)
			}
		}
		if a.State != 20 {
			t.Errorf("state after exploiting = %d, want 20", a.State)
		}
	})

	t.Run("probabilistic samples from the distribution", func(t *testing.T) {
		m := &mockActor{probs: []float64{0, 1}}
		a := newTestReinforce(t, newCorridor(3), m)
		for i := 0; i < 100; i++ {
			action, err := a.Action(ctx, step, Probabilistic)
			if err != nil {
				t.Fatalf("Action failed: %v", err)
			}
			if action != right {
				t.Fatalf("Action() = %d, want %d", action, right)
			}
		}
	})

	t.Run("acts with a replaced network", func(t *testing.T) {
		before := &mockActor{probs: []float64{0.2, 0.8}}
		after := &mockActor{probs: []float64{0.9, 0.1}}
		a := newTestReinforce(t, newCorridor(3), before)
		a.Network = actorNet{after}
		action, err := a.Action(ctx, step, Greedy)
		if err != nil {
			t.Fatalf("Action failed: %v", err)
		}
		if action != left || before.predictions != 0 || after.predictions != 1 {
			t.Errorf("Action() = %d with %d/%d predictions, want %d from the new network",
				action, before.predictions, after.predictions, left)
		}

		critic, err := NewA2CAgent[int, int, move](newCorridor(3), actorCriticNet{before}, 0)
		if err != nil {
			t.Fatalf("NewA2CAgent failed: %v", err)
		}
		critic.Network = actorCriticNet{after}
		if action, err := critic.Action(ctx, step, Greedy); err != nil || action != left {
			t.Errorf("A2C Action() = %d, %v, want %d", action, err, left)
		}
		if before.predictions != 0 {
			t.Errorf("replaced network was queried %d times", before.predictions)
		}
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("greedy episode", func(t *testing.T) {
		env := newCorridor(7)
		a := newTestReinforce(t, env, &mockActor{probs: []float64{0.5, 0.5}})
		collected := core.NewTrajectory[int, int, move]()
		err := a.Run(ctx, env, Greedy, RunParams{MaxSteps: 1000, MaxEpisodes: 1},
			func(env core.Environment[int, move], trajectory *core.Trajectory[int, int, move]) {
				if trajectory.Len() != 1 {
					t.Errorf("callback trajectory length = %d, want 1", trajectory.Len())
				}
				e, _ := trajectory.CurrentStep()
				collected.Append(e)
			})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if got := collected.NumEpisodes(); got != 1 {
			t.Errorf("NumEpisodes() = %d, want 1", got)
		}
		if collected.Len() != env.steps {
			t.Errorf("collected %d entries, environment took %d steps", collected.Len(), env.steps)
		}
		if diff := cmp.Diff([]float64{-0.1, -0.1, -0.1, -0.1, -0.1, -0.1, -0.1}, collected.Rewards()); diff != "" {
			t.Errorf("rewards mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("entries carry the pre-step observation and state", func(t *testing.T) {
		env := newCorridor(3)
		a := newTestReinforce(t, env, &mockActor{probs: []float64{1, 0}})
		var entries []core.Entry[int, int, move]
		err := a.Run(ctx, env, Greedy, RunParams{MaxSteps: 3}, func(_ core.Environment[int, move], trajectory *core.Trajectory[int, int, move]) {
			entries = append(entries, trajectory.Steps...)
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		want := []core.Entry[int, int, move]{
			{StepKind: core.Transition, Observation: 0, State: 0, Action: left, Reward: -0.1},
			{StepKind: core.Transition, Observation: 1, State: 1, Action: left, Reward: -0.1},
			{StepKind: core.Last, Observation: 2, State: 2, Action: left, Reward: -0.1},
		}
		if diff := cmp.Diff(want, entries); diff != "" {
			t.Errorf("entries mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("callbacks can reset the environment", func(t *testing.T) {
		env := newCorridor(10)
		a := newTestReinforce(t, env, &mockActor{probs: []float64{1, 0}})
		err := a.Run(ctx, env, Greedy, RunParams{MaxSteps: 6}, func(env core.Environment[int, move], _ *core.Trajectory[int, int, move]) {
			if env.CurrentStep().Observation == 2 {
				env.Reset(ctx)
			}
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if env.position != 0 {
			t.Errorf("position = %d, want 0", env.position)
		}
	})

	t.Run("collaborator errors propagate", func(t *testing.T) {
		env := newCorridor(3)
		a := newTestReinforce(t, env, &mockActor{err: errBoom})
		if err := a.Run(ctx, env, Greedy, RunParams{MaxSteps: 5}); !errors.Is(err, errBoom) {
			t.Errorf("Run() err = %v, want %v", err, errBoom)
		}

		env = newCorridor(3)
		env.stepErr = errBoom
		a = newTestReinforce(t, env, &mockActor{probs: []float64{1, 0}})
		if err := a.Run(ctx, env, Random, RunParams{MaxSteps: 5}); !errors.Is(err, errBoom) {
			t.Errorf("Run() err = %v, want %v", err, errBoom)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		env := newCorridor(3)
		a := newTestReinforce(t, env, &mockActor{probs: []float64{1, 0}})
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := a.Run(ctx, env, Greedy, RunParams{}); !errors.Is(err, context.Canceled) {
			t.Errorf("Run() err = %v, want context.Canceled", err)
		}
		if env.steps != 0 {
			t.Errorf("environment took %d steps after cancellation", env.steps)
		}
	})
}

func TestReinforceAgent(t *testing.T) {
	ctx := context.Background()
	approx := cmpopts.EquateApprox(0, 1e-9)

	t.Run("invalid discount factor", func(t *testing.T) {
		_, err := NewReinforceAgent[int, int, move](newCorridor(3), actorNet{&mockActor{}}, 0, WithDiscountFactor(1.5))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("no completed episode is a no-op", func(t *testing.T) {
		m := &mockActor{probs: []float64{0.5, 0.5}}
		a := newTestReinforce(t, newCorridor(3), m)
		trajectory := core.NewTrajectory(
			core.Entry[int, int, move]{StepKind: core.Transition, Reward: 1},
			core.Entry[int, int, move]{StepKind: core.Transition, Reward: 1},
		)
		loss, err := a.UpdateTrajectory(ctx, trajectory)
		if err != nil {
			t.Fatalf("UpdateTrajectory failed: %v", err)
		}
		if loss != 0 || len(m.objectives) != 0 {
			t.Errorf("loss = %v with %d updates, want 0 and none", loss, len(m.objectives))
		}
	})

	t.Run("weights completed entries by their returns", func(t *testing.T) {
		m := &mockActor{probs: []float64{0.5, 0.5}}
		a := newTestReinforce(t, newCorridor(3), m, WithDiscountFactor(0.5), WithNormalization(false))
		trajectory := core.NewTrajectory(
			core.Entry[int, int, move]{StepKind: core.Transition, Action: left, Reward: -0.1},
			core.Entry[int, int, move]{StepKind: core.Transition, Action: right, Reward: -0.1},
			core.Entry[int, int, move]{StepKind: core.Last, Action: left, Reward: -0.1},
			core.Entry[int, int, move]{StepKind: core.Transition, Action: right, Reward: 5},
		)
		if _, err := a.UpdateTrajectory(ctx, trajectory); err != nil {
			t.Fatalf("UpdateTrajectory failed: %v", err)
		}
		var weights []float64
		for _, o := range m.objectives {
			weights = append(weights, o.Weight)
		}
		if diff := cmp.Diff([]float64{-0.175, -0.15, -0.1}, weights, approx); diff != "" {
			t.Errorf("weights mismatch (-want +got):\n%s", diff)
		}
		wantLoss := -distribution.NewEnum[move](m.probs).LogProbability(left) * -0.175
		if diff := cmp.Diff(wantLoss, m.objectives[0].Loss.PolicyGradient, approx); diff != "" {
			t.Errorf("policy gradient loss mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("entropy regularization", func(t *testing.T) {
		m := &mockActor{probs: []float64{0.5, 0.5}}
		a := newTestReinforce(t, newCorridor(3), m, WithEntropyRegularizationWeight(0.1))
		trajectory := core.NewTrajectory(core.Entry[int, int, move]{StepKind: core.Last, Reward: 1})
		if _, err := a.UpdateTrajectory(ctx, trajectory); err != nil {
			t.Fatalf("UpdateTrajectory failed: %v", err)
		}
		want := -0.1 * distribution.NewEnum[move](m.probs).Entropy()
		if diff := cmp.Diff(want, m.objectives[0].Loss.Entropy, approx); diff != "" {
			t.Errorf("entropy loss mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("update collects with sampled actions", func(t *testing.T) {
		m := &mockActor{probs: []float64{0.5, 0.5}}
		env := newCorridor(4)
		a := newTestReinforce(t, env, m)
		var lengths []int
		_, err := a.Update(ctx, env, RunParams{MaxEpisodes: 2}, func(_ core.Environment[int, move], trajectory *core.Trajectory[int, int, move]) {
			lengths = append(lengths, trajectory.Len())
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if diff := cmp.Diff([]int{1, 2, 3, 4, 5, 6, 7, 8}, lengths); diff != "" {
			t.Errorf("callback trajectory lengths mismatch (-want +got):\n%s", diff)
		}
		if len(m.objectives) != 8 {
			t.Errorf("network updated %d times, want 8", len(m.objectives))
		}
	})
}

func TestA2CAgent(t *testing.T) {
	ctx := context.Background()
	approx := cmpopts.EquateApprox(0, 1e-9)

	m := &mockActor{probs: []float64{0.5, 0.5}, value: 0.5}
	a, err := NewA2CAgent[int, int, move](newCorridor(3), actorCriticNet{m}, 0, WithNormalization(false))
	if err != nil {
		t.Fatalf("NewA2CAgent failed: %v", err)
	}

	t.Run("too short", func(t *testing.T) {
		loss, err := a.UpdateTrajectory(ctx, core.NewTrajectory(core.Entry[int, int, move]{StepKind: core.Last}))
		if err != nil || loss != 0 {
			t.Errorf("UpdateTrajectory() = %v, %v, want 0, nil", loss, err)
		}
	})

	t.Run("advantages and value targets", func(t *testing.T) {
		trajectory := core.NewTrajectory(
			core.Entry[int, int, move]{StepKind: core.Transition, Action: left, Reward: 1},
			core.Entry[int, int, move]{StepKind: core.Last, Action: right, Reward: 2},
			core.Entry[int, int, move]{StepKind: core.Transition, Action: left, Reward: 3},
		)
		if _, err := a.UpdateTrajectory(ctx, trajectory); err != nil {
			t.Fatalf("UpdateTrajectory failed: %v", err)
		}
		if len(m.objectives) != 2 {
			t.Fatalf("network updated %d times, want 2", len(m.objectives))
		}
		var advantages, targets, valueLosses []float64
		for _, o := range m.objectives {
			advantages = append(advantages, o.Weight)
			targets = append(targets, o.ValueTarget)
			valueLosses = append(valueLosses, o.Loss.ValueEstimation)
		}
		if diff := cmp.Diff([]float64{2.3, 1.5}, advantages, approx); diff != "" {
			t.Errorf("advantages mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]float64{2.8, 2}, targets, approx); diff != "" {
			t.Errorf("value targets mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]float64{0.2 * 2.3 * 2.3, 0.2 * 1.5 * 1.5}, valueLosses, approx); diff != "" {
			t.Errorf("value losses mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("generalized advantage estimation", func(t *testing.T) {
		m := &mockActor{probs: []float64{0.5, 0.5}}
		a, err := NewA2CAgent[int, int, move](newCorridor(3), actorCriticNet{m}, 0,
			WithAdvantageFunction(values.GeneralizedAdvantageEstimation{DiscountFactor: 0.9, DiscountWeight: 1}),
			WithNormalization(false))
		if err != nil {
			t.Fatalf("NewA2CAgent failed: %v", err)
		}
		trajectory := core.NewTrajectory(
			core.Entry[int, int, move]{StepKind: core.Transition, Reward: 1},
			core.Entry[int, int, move]{StepKind: core.Last, Reward: 2},
			core.Entry[int, int, move]{StepKind: core.First},
		)
		if _, err := a.UpdateTrajectory(ctx, trajectory); err != nil {
			t.Fatalf("UpdateTrajectory failed: %v", err)
		}
		if diff := cmp.Diff(2.8, m.objectives[0].Weight, approx); diff != "" {
			t.Errorf("advantage mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing advantage function", func(t *testing.T) {
		_, err := NewA2CAgent[int, int, move](newCorridor(3), actorCriticNet{m}, 0, WithAdvantageFunction(nil))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("err = %v, want ErrInvalidConfig", err)
		}
	})
}
