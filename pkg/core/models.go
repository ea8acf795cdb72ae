package core

import (
	"time"
)

// StepKind marks where a step sits within an episode.
type StepKind int

const (
	// First opens an episode.
	First StepKind = iota
	// Transition is any step strictly inside an episode.
	Transition
	// Last closes an episode.
	Last
)

func (k StepKind) String() string {
	switch k {
	case First:
		return "first"
	case Last:
		return "last"
	default:
		return "transition"
	}
}

// Step is what an environment reports after a step or reset.
type Step[O any] struct {
	Kind        StepKind
	Observation O
	Reward      float64
}

// AgentInput is what an agent feeds its network: an observation and the
// recurrent state the agent held when it saw it.
type AgentInput[O, S any] struct {
	Observation O
	State       S
}

// Entry is one collected transition.
type Entry[O, S, A any] struct {
	// StepKind is the kind of the step the environment returned after Action.
	StepKind StepKind
	// Observation is the observation the action was chosen for.
	Observation O
	// State is the agent state before the action was chosen.
	State  S
	Action A
	// Reward is the reward returned with the resulting step.
	Reward float64
}

// Trajectory is an append-only buffer of collected entries. It is owned by the
// loop that fills it and must not be shared between concurrent runs.
type Trajectory[O, S, A any] struct {
	Steps []Entry[O, S, A]
}

// NewTrajectory returns a trajectory holding the given entries.
func NewTrajectory[O, S, A any](entries ...Entry[O, S, A]) *Trajectory[O, S, A] {
	return &Trajectory[O, S, A]{Steps: entries}
}

// Append adds an entry to the end of the trajectory.
func (t *Trajectory[O, S, A]) Append(e Entry[O, S, A]) {
	t.Steps = append(t.Steps, e)
}

// Len returns the number of entries.
func (t *Trajectory[O, S, A]) Len() int {
	return len(t.Steps)
}

// NumEpisodes counts the entries that close an episode.
func (t *Trajectory[O, S, A]) NumEpisodes() int {
	n := 0
	for _, e := range t.Steps {
		if e.StepKind == Last {
			n++
		}
	}
	return n
}

// CurrentStep returns the most recently appended entry.
func (t *Trajectory[O, S, A]) CurrentStep() (Entry[O, S, A], bool) {
	if len(t.Steps) == 0 {
		var zero Entry[O, S, A]
		return zero, false
	}
	return t.Steps[len(t.Steps)-1], true
}

// StepKinds returns the step kind of every entry in order.
func (t *Trajectory[O, S, A]) StepKinds() []StepKind {
	kinds := make([]StepKind, len(t.Steps))
	for i, e := range t.Steps {
		kinds[i] = e.StepKind
	}
	return kinds
}

// Rewards returns the reward of every entry in order.
func (t *Trajectory[O, S, A]) Rewards() []float64 {
	rewards := make([]float64, len(t.Steps))
	for i, e := range t.Steps {
		rewards[i] = e.Reward
	}
	return rewards
}

// CompleteEpisodeMask reports, per entry, whether the entry belongs to an
// episode that a later (or the same) Last entry closes. Entries of a trailing
// unfinished episode are false.
func (t *Trajectory[O, S, A]) CompleteEpisodeMask() []bool {
	mask := make([]bool, len(t.Steps))
	closed := false
	for i := len(t.Steps) - 1; i >= 0; i-- {
		if t.Steps[i].StepKind == Last {
			closed = true
		}
		mask[i] = closed
	}
	return mask
}

// ExperimentStatus tracks the lifecycle of an experiment run.
type ExperimentStatus struct {
	Running   bool
	StartTime time.Time
	EndTime   time.Time
	Errors    []error
}
