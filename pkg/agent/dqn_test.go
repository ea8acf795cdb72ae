package agent

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/boristopalov/rlcore/pkg/core"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// mockQ returns the same Q values for every input and records the regression
// targets it is asked to fit.
type mockQ struct {
	q           []float64
	targets     [][]float64
	err         error
	softUpdates int
}

func (m *mockQ) Prediction(ctx context.Context, input core.AgentInput[int, int]) (QOutput[int], error) {
	if m.err != nil {
		return QOutput[int]{}, m.err
	}
	return QOutput[int]{QValues: slices.Clone(m.q), State: input.State + 1}, nil
}

func (m *mockQ) Update(ctx context.Context, input core.AgentInput[int, int], lossFunc core.LossFunc[QOutput[int]]) (float64, error) {
	out, err := m.Prediction(ctx, input)
	if err != nil {
		return 0, err
	}
	target, err := lossFunc(ctx, out)
	if err != nil {
		return 0, err
	}
	m.targets = append(m.targets, target.QValues)
	loss := 0.0
	for i := range out.QValues {
		d := target.QValues[i] - out.QValues[i]
		loss += d * d
	}
	return loss / float64(len(out.QValues)), nil
}

// syncingQ is a mockQ that can keep a target copy of itself.
type syncingQ struct {
	*mockQ
	clones []*syncingQ
}

func (s *syncingQ) Clone() QNetwork[int, int] {
	c := &syncingQ{mockQ: &mockQ{q: slices.Clone(s.q)}}
	s.clones = append(s.clones, c)
	return c
}

func (s *syncingQ) SoftUpdate(source QNetwork[int, int], forgetFactor float64) error {
	src, ok := source.(*syncingQ)
	if !ok {
		return errors.New("unexpected source network")
	}
	for i := range s.q {
		s.q[i] = forgetFactor*src.q[i] + (1-forgetFactor)*s.q[i]
	}
	s.softUpdates++
	return nil
}

func newTestDQN(t *testing.T, env core.Environment[int, move], network QNetwork[int, int], opts ...AgentOption) *DQNAgent[int, int, move] {
	t.Helper()
	opts = append([]AgentOption{
		WithTrainSequenceLength(1),
		WithMaxReplayedSequenceLength(100),
		WithRand(rand.New(rand.NewSource(7))),
	}, opts...)
	a, err := NewDQNAgent[int, int, move](env, network, 0, opts...)
	if err != nil {
		t.Fatalf("NewDQNAgent failed: %v", err)
	}
	return a
}

func TestNewDQNAgent(t *testing.T) {
	tests := []struct {
		name string
		opts []AgentOption
	}{
		{"zero train sequence length", []AgentOption{WithMaxReplayedSequenceLength(10)}},
		{"train sequence not shorter than replay", []AgentOption{WithTrainSequenceLength(10), WithMaxReplayedSequenceLength(10)}},
		{"zero forget factor", []AgentOption{WithTrainSequenceLength(1), WithMaxReplayedSequenceLength(10), WithTargetUpdateForgetFactor(0)}},
		{"forget factor above one", []AgentOption{WithTrainSequenceLength(1), WithMaxReplayedSequenceLength(10), WithTargetUpdateForgetFactor(1.1)}},
		{"zero target update period", []AgentOption{WithTrainSequenceLength(1), WithMaxReplayedSequenceLength(10), WithTargetUpdatePeriod(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDQNAgent[int, int, move](newCorridor(3), &mockQ{q: []float64{0, 0}}, 0, tt.opts...)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDQNAgent(t *testing.T) {
	ctx := context.Background()
	approx := cmpopts.EquateApprox(0, 1e-9)

	t.Run("greedy action maximizes Q", func(t *testing.T) {
		a := newTestDQN(t, newCorridor(3), &mockQ{q: []float64{1, 3}})
		action, err := a.Action(ctx, core.Step[int]{}, Greedy)
		if err != nil {
			t.Fatalf("Action failed: %v", err)
		}
		if action != right {
			t.Errorf("Action() = %d, want %d", action, right)
		}
	})

	t.Run("acts with a replaced network", func(t *testing.T) {
		a := newTestDQN(t, newCorridor(3), &mockQ{q: []float64{1, 3}})
		a.Network = &mockQ{q: []float64{4, 2}}
		action, err := a.Action(ctx, core.Step[int]{}, Greedy)
		if err != nil {
			t.Fatalf("Action failed: %v", err)
		}
		if action != left {
			t.Errorf("Action() = %d, want %d", action, left)
		}
	})

	t.Run("TD targets", func(t *testing.T) {
		q := &mockQ{q: []float64{1, 3}}
		a := newTestDQN(t, newCorridor(3), q, WithDiscountFactor(0.5))
		trajectory := core.NewTrajectory(
			core.Entry[int, int, move]{StepKind: core.Transition, Action: right, Reward: 0.5},
			core.Entry[int, int, move]{StepKind: core.Last, Action: left, Reward: 1},
		)
		if _, err := a.UpdateTrajectory(ctx, trajectory); err != nil {
			t.Fatalf("UpdateTrajectory failed: %v", err)
		}
		want := [][]float64{{1, 2}, {1, 3}}
		if diff := cmp.Diff(want, q.targets, approx); diff != "" {
			t.Errorf("targets mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unfinished final entry is skipped", func(t *testing.T) {
		q := &mockQ{q: []float64{1, 3}}
		a := newTestDQN(t, newCorridor(3), q)
		loss, err := a.UpdateTrajectory(ctx, core.NewTrajectory(core.Entry[int, int, move]{StepKind: core.Transition}))
		if err != nil || loss != 0 || len(q.targets) != 0 {
			t.Errorf("UpdateTrajectory() = %v, %v with %d updates, want 0, nil and none", loss, err, len(q.targets))
		}
	})

	t.Run("no draws yield zero loss", func(t *testing.T) {
		q := &mockQ{q: []float64{1, 3}}
		env := newCorridor(3)
		a := newTestDQN(t, env, q, WithTrainStepsPerIteration(0))
		loss, err := a.Update(ctx, env, RunParams{MaxSteps: 5})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if loss != 0 || len(q.targets) != 0 {
			t.Errorf("loss = %v with %d updates, want 0 and none", loss, len(q.targets))
		}
		if a.ReplayLen() != 5 {
			t.Errorf("ReplayLen() = %d, want 5", a.ReplayLen())
		}
	})

	t.Run("replay buffer is capped", func(t *testing.T) {
		env := newCorridor(3)
		a := newTestDQN(t, env, &mockQ{q: []float64{1, 3}}, WithMaxReplayedSequenceLength(4), WithTrainStepsPerIteration(3))
		for i := 0; i < 3; i++ {
			if _, err := a.Update(ctx, env, RunParams{MaxSteps: 10}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
		}
		if a.ReplayLen() != 4 {
			t.Errorf("ReplayLen() = %d, want 4", a.ReplayLen())
		}
	})

	t.Run("target network is soft updated every period", func(t *testing.T) {
		online := &syncingQ{mockQ: &mockQ{q: []float64{1, 3}}}
		env := newCorridor(3)
		a := newTestDQN(t, env, online,
			WithTargetUpdatePeriod(2),
			WithTargetUpdateForgetFactor(0.5),
			WithTrainStepsPerIteration(4))
		if len(online.clones) != 1 {
			t.Fatalf("online network cloned %d times, want 1", len(online.clones))
		}
		target := online.clones[0]
		target.q = []float64{3, 5}

		if _, err := a.Update(ctx, env, RunParams{MaxSteps: 2}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if target.softUpdates != 2 {
			t.Errorf("soft updates = %d, want 2", target.softUpdates)
		}
		if diff := cmp.Diff([]float64{1.5, 3.5}, target.q, approx); diff != "" {
			t.Errorf("target Q mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("bootstraps from the target network", func(t *testing.T) {
		online := &syncingQ{mockQ: &mockQ{q: []float64{0, 0}}}
		a := newTestDQN(t, newCorridor(3), online, WithDiscountFactor(1), WithTargetUpdatePeriod(10))
		online.clones[0].q = []float64{4, 2}
		trajectory := core.NewTrajectory(
			core.Entry[int, int, move]{StepKind: core.Transition, Action: left, Reward: 1},
			core.Entry[int, int, move]{StepKind: core.Last, Action: left, Reward: 0},
		)
		if _, err := a.UpdateTrajectory(ctx, trajectory); err != nil {
			t.Fatalf("UpdateTrajectory failed: %v", err)
		}
		if got := online.targets[0][0]; got != 5 {
			t.Errorf("target Q = %v, want 5", got)
		}
	})

	t.Run("network errors propagate", func(t *testing.T) {
		env := newCorridor(3)
		a := newTestDQN(t, env, &mockQ{err: errBoom}, WithEpsilonGreedy(0))
		if _, err := a.Update(ctx, env, RunParams{MaxSteps: 2}); !errors.Is(err, errBoom) {
			t.Errorf("Update() err = %v, want %v", err, errBoom)
		}
	})
}
