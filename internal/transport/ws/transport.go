// Package ws implements the presence transport over a websocket connection
// to the push gateway. Frames are JSON envelopes of the form
// {"event": ..., "channel": ..., "data": ...}; subscribe and unsubscribe are
// sent as envelopes too, with private/presence subscriptions carrying a
// signed auth token.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/okian/ridetrack/internal/adapters/presence"
	"github.com/okian/ridetrack/internal/transport/auth"
	"github.com/okian/ridetrack/pkg/logger"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 1 << 20
)

// frame is the outbound envelope. Inbound envelopes decode directly into
// presence.Message.
type frame struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

// Transport speaks the gateway protocol over one websocket connection.
// Reconnection is deliberately not handled here: when the connection drops
// the message channel closes and the owning session decides what to do.
type Transport struct {
	url    string
	signer *auth.Signer
	log    logger.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	msgs      chan presence.Message
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Option applies a configuration option to the Transport.
type Option func(*Transport)

// WithSigner enables channel auth tokens on subscribe frames.
func WithSigner(s *auth.Signer) Option {
	return func(t *Transport) { t.signer = s }
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(t *Transport) {
		if log != nil {
			t.log = log
		}
	}
}

// New creates a transport for the given gateway URL.
func New(url string, opts ...Option) *Transport {
	t := &Transport{
		url:  url,
		msgs: make(chan presence.Message, 256),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Get().Named("ws")
	}
	return t
}

// Connect dials the gateway and starts the read and keepalive loops.
func (t *Transport) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	conn.SetReadLimit(readLimit)
	t.conn = conn

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.readLoop(runCtx)
	go t.pingLoop(runCtx)
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.msgs)
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg presence.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.log.Warn(ctx, "dropping unparseable frame", logger.Error(err))
			continue
		}
		select {
		case t.msgs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			_ = t.conn.Ping(pingCtx)
			cancel()
		}
	}
}

// Subscribe sends a subscribe frame. Presence and private channels get a
// signed auth token when a signer is configured.
func (t *Transport) Subscribe(ctx context.Context, channel string) error {
	f := frame{Event: "subscribe", Channel: channel}
	if t.signer != nil && presence.ChannelKind(channel) != "unknown" {
		tok, err := t.signer.ChannelToken(channel)
		if err != nil {
			return fmt.Errorf("sign channel token: %w", err)
		}
		f.Auth = tok
	}
	return t.write(ctx, f)
}

// Unsubscribe sends an unsubscribe frame. The gateway treats unknown
// channels as a no-op, matching the client's idempotent semantics.
func (t *Transport) Unsubscribe(ctx context.Context, channel string) error {
	return t.write(ctx, frame{Event: "unsubscribe", Channel: channel})
}

func (t *Transport) write(ctx context.Context, f frame) error {
	if t.conn == nil {
		return fmt.Errorf("ws transport not connected")
	}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := t.conn.Write(writeCtx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Messages returns the inbound envelope stream.
func (t *Transport) Messages() <-chan presence.Message {
	return t.msgs
}

// Close tears the connection down. Safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		if t.conn != nil {
			_ = t.conn.Close(websocket.StatusNormalClosure, "session ended")
		}
	})
	return nil
}
