// Package queue defines the contract for the ordered, bounded event stream
// between the presence client and a tracking session's apply loop.
//
// Ordering matters here: the reconciler applies events strictly in arrival
// order, so the queue is a single FIFO consumed by one goroutine.
package queue

import (
	"context"
	"sync"

	"github.com/okian/ridetrack/internal/domain/events"
	"github.com/okian/ridetrack/pkg/metrics"
)

const defaultCapacity = 1024

// Event is the payload type flowing through the queue.
type Event = events.Event

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event to the queue.
	// Returns false if the queue is full or closed and the event was dropped.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns the channel events arrive on, in enqueue order.
	// The channel is closed when the queue is closed.
	Dequeue() <-chan Event

	// Len returns the current number of queued events.
	Len() int

	// Close shuts the queue down. After closing, Enqueue returns false and
	// the dequeue channel drains then closes.
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	name     string

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with the given options applied.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordEventDropped("queue_closed")
		return false
	}

	// Checked on its own so a cancelled context always drops, never races
	// the send below.
	select {
	case <-ctx.Done():
		metrics.RecordEventDropped("context_cancelled")
		return false
	default:
	}

	select {
	case q.events <- e:
		if q.name != "" {
			metrics.UpdateQueueDepth(q.name, len(q.events))
		}
		return true
	default:
		// A full queue means the consumer is hopelessly behind; dropping an
		// event breaks in-order delivery for this session, so count it.
		metrics.RecordEventDropped("queue_full")
		return false
	}
}

// Dequeue returns the channel events arrive on.
func (q *InMemoryQueue) Dequeue() <-chan Event {
	return q.events
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Close shuts the queue down. Safe to call more than once.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}
