package messaging

import (
	"time"
)

type EventKind string

const (
	ExperimentStarted   EventKind = "experiment_started"
	IterationCompleted  EventKind = "iteration_completed"
	EvaluationCompleted EventKind = "evaluation_completed"
	ExperimentFinished  EventKind = "experiment_finished"
	ExperimentFailed    EventKind = "experiment_failed"
)

// Event is a progress notification published by a running experiment.
type Event struct {
	// Source is the ID of the publishing experiment.
	Source string

	// To lists recipient subscriber IDs; empty means broadcast.
	To []string

	Kind      EventKind
	Payload   any
	Timestamp time.Time
}

// Broker routes events from experiments to subscribers.
type Broker interface {
	// Publish delivers an event without blocking.
	Publish(event Event) error
	Subscribe(subscriberID string, ch chan<- Event) error
	Unsubscribe(subscriberID string) error
}
