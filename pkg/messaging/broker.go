package messaging

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSubscriberFull is returned when an event is dropped because a
// subscriber's channel has no free buffer.
var ErrSubscriberFull = errors.New("subscriber channel is full")

// SimpleBroker implements Broker over buffered channels keyed by subscriber ID.
type SimpleBroker struct {
	subscribers map[string]chan<- Event
	mu          sync.RWMutex
}

func NewBroker() *SimpleBroker {
	return &SimpleBroker{
		subscribers: make(map[string]chan<- Event),
	}
}

// Publish sends event to its recipients, or to every subscriber other than the
// source when no recipient is named. Full subscribers miss the event; the
// others still receive it.
func (b *SimpleBroker) Publish(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	recipients := event.To
	if len(recipients) == 0 {
		for id := range b.subscribers {
			if id != event.Source {
				recipients = append(recipients, id)
			}
		}
	}

	var errs []error
	for _, id := range recipients {
		ch, ok := b.subscribers[id]
		if !ok {
			continue
		}
		select {
		case ch <- event:
		default:
			errs = append(errs, fmt.Errorf("%w: %s", ErrSubscriberFull, id))
		}
	}
	return errors.Join(errs...)
}

func (b *SimpleBroker) Subscribe(subscriberID string, ch chan<- Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[subscriberID]; exists {
		return fmt.Errorf("%s is already subscribed", subscriberID)
	}
	b.subscribers[subscriberID] = ch
	return nil
}

func (b *SimpleBroker) Unsubscribe(subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[subscriberID]; !exists {
		return fmt.Errorf("%s is not subscribed", subscriberID)
	}
	delete(b.subscribers, subscriberID)
	return nil
}

func (b *SimpleBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string]chan<- Event)
}
