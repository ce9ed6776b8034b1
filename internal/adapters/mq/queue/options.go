package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets how many events the queue buffers before dropping.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithName labels the queue's depth gauge, typically with the owning
// session's id. Unnamed queues report no depth metric.
func WithName(name string) Option {
	return func(q *InMemoryQueue) {
		q.name = name
	}
}
