// Package memory provides a capacity-capped store that evicts its oldest
// entries, used as the replay buffer of off-policy agents.
package memory

import (
	"errors"
	"math/rand"
)

// ErrEmpty is returned when sampling from an empty memory.
var ErrEmpty = errors.New("memory is empty")

// Memory is a ring buffer holding at most capacity items. It is owned by a
// single agent and is not safe for concurrent use.
type Memory[T any] struct {
	items    []T
	start    int
	capacity int
	rng      *rand.Rand
}

// NewMemory returns an empty memory. A nil rng samples from the global source.
func NewMemory[T any](capacity int, rng *rand.Rand) *Memory[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Memory[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		rng:      rng,
	}
}

// Store appends item, evicting the oldest item once the memory is full.
func (m *Memory[T]) Store(item T) {
	if len(m.items) < m.capacity {
		m.items = append(m.items, item)
		return
	}
	m.items[m.start] = item
	m.start = (m.start + 1) % m.capacity
}

// Len returns the number of stored items.
func (m *Memory[T]) Len() int {
	return len(m.items)
}

// Capacity returns the maximum number of items kept.
func (m *Memory[T]) Capacity() int {
	return m.capacity
}

// At returns the i-th oldest item.
func (m *Memory[T]) At(i int) T {
	return m.items[(m.start+i)%len(m.items)]
}

// Sample returns an item drawn uniformly at random.
func (m *Memory[T]) Sample() (T, error) {
	if len(m.items) == 0 {
		var zero T
		return zero, ErrEmpty
	}
	var i int
	if m.rng == nil {
		i = rand.Intn(len(m.items))
	} else {
		i = m.rng.Intn(len(m.items))
	}
	return m.items[i], nil
}

// All returns a copy of the stored items, oldest first.
func (m *Memory[T]) All() []T {
	out := make([]T, len(m.items))
	for i := range out {
		out[i] = m.At(i)
	}
	return out
}

// Reset drops every stored item.
func (m *Memory[T]) Reset() {
	m.items = m.items[:0]
	m.start = 0
}
