package app

import (
	"github.com/okian/ridetrack/internal/adapters/mapview"
	"github.com/okian/ridetrack/pkg/logger"
)

// Option applies a configuration option to a Session.
type Option func(*Session)

// WithLogger sets a custom logger for the session.
func WithLogger(log logger.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithQueueSize bounds the session's inbound event queue.
func WithQueueSize(size int) Option {
	return func(s *Session) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithSink substitutes the marker sink. Without it the session records
// markers in a MemorySink served over the HTTP API.
func WithSink(sink mapview.Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// ManagerOption applies a configuration option to the Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets a custom logger for the manager.
func WithManagerLogger(log logger.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSessionOptions forwards options to every session the manager creates.
func WithSessionOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.sessionOpts = append(m.sessionOpts, opts...)
	}
}
