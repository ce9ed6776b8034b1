// Package redisps implements the presence transport on Redis pub/sub.
//
// Event envelopes are published as JSON on the channel itself; presence
// membership snapshots live in a hash keyed members:{channel}, with one
// field per rider id holding the member payload. On subscribe the transport
// reads the hash and synthesizes the subscription_succeeded envelope locally,
// so the client sees the exact same protocol as over the websocket gateway.
package redisps

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/ridetrack/internal/adapters/presence"
	"github.com/okian/ridetrack/pkg/logger"
)

const (
	connectTimeout = 5 * time.Second
	membersPrefix  = "members:"
)

// envelope is the payload published on a redis channel.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Transport implements presence.Transport on a Redis connection.
type Transport struct {
	client *redis.Client
	log    logger.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	msgs   chan presence.Message

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Option applies a configuration option to the Transport.
type Option func(*Transport)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(t *Transport) {
		if log != nil {
			t.log = log
		}
	}
}

// New creates a transport from a redis URL, e.g. redis://localhost:6379/0.
func New(url string, opts ...Option) (*Transport, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	t := &Transport{
		client: redis.NewClient(o),
		msgs:   make(chan presence.Message, 256),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Get().Named("redisps")
	}
	return t, nil
}

// Connect pings the server and starts the relay loop.
func (t *Transport) Connect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := t.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	// Subscribe with no channels yet; channels join dynamically.
	t.pubsub = t.client.Subscribe(ctx)

	runCtx, cancelRun := context.WithCancel(context.Background())
	t.cancel = cancelRun
	go t.relay(runCtx)
	return nil
}

func (t *Transport) relay(ctx context.Context) {
	defer close(t.msgs)
	ch := t.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				t.log.Warn(ctx, "dropping unparseable redis payload",
					logger.String("channel", m.Channel), logger.Error(err))
				continue
			}
			msg := presence.Message{Channel: m.Channel, Event: env.Event, Data: env.Data}
			select {
			case t.msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Subscribe joins a channel and, for presence channels, synthesizes the
// subscription_succeeded snapshot from the membership hash.
func (t *Transport) Subscribe(ctx context.Context, channel string) error {
	t.mu.Lock()
	pubsub := t.pubsub
	t.mu.Unlock()
	if pubsub == nil {
		return fmt.Errorf("redis transport not connected")
	}
	if err := pubsub.Subscribe(ctx, channel); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	var data json.RawMessage
	if presence.ChannelKind(channel) == "presence" {
		snap, err := t.membershipSnapshot(ctx, channel)
		if err != nil {
			return fmt.Errorf("membership snapshot %s: %w", channel, err)
		}
		data = snap
	}

	select {
	case t.msgs <- presence.Message{
		Channel: channel,
		Event:   presence.EventSubscriptionSucceeded,
		Data:    data,
	}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// membershipSnapshot reads the channel's hash and builds the
// {"members": {id: member}} payload.
func (t *Transport) membershipSnapshot(ctx context.Context, channel string) (json.RawMessage, error) {
	fields, err := t.client.HGetAll(ctx, membersPrefix+channel).Result()
	if err != nil {
		return nil, err
	}
	snap, skipped, err := encodeSnapshot(fields)
	if err != nil {
		return nil, err
	}
	for _, id := range skipped {
		t.log.Warn(ctx, "skipping invalid member record",
			logger.String("channel", channel), logger.String("id", id))
	}
	return snap, nil
}

// encodeSnapshot maps raw hash fields onto the subscription_succeeded
// payload. Member payloads pass through verbatim; fields that do not hold
// valid JSON are dropped and their ids reported.
func encodeSnapshot(fields map[string]string) (json.RawMessage, []string, error) {
	members := make(map[string]json.RawMessage, len(fields))
	var skipped []string
	for id, raw := range fields {
		if !json.Valid([]byte(raw)) {
			skipped = append(skipped, id)
			continue
		}
		members[id] = json.RawMessage(raw)
	}
	snap, err := json.Marshal(map[string]any{"members": members})
	if err != nil {
		return nil, nil, err
	}
	return snap, skipped, nil
}

// Unsubscribe leaves a channel. Redis treats unknown channels as a no-op.
func (t *Transport) Unsubscribe(ctx context.Context, channel string) error {
	t.mu.Lock()
	pubsub := t.pubsub
	t.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	if err := pubsub.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("redis unsubscribe %s: %w", channel, err)
	}
	return nil
}

// Messages returns the inbound envelope stream.
func (t *Transport) Messages() <-chan presence.Message {
	return t.msgs
}

// Close shuts the pub/sub and the client down. Safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		if t.pubsub != nil {
			err = t.pubsub.Close()
		}
		if cerr := t.client.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
