package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/ridetrack/internal/adapters/mq/queue"
	"github.com/okian/ridetrack/internal/domain/events"
	"github.com/okian/ridetrack/internal/domain/model"
	"github.com/okian/ridetrack/pkg/logger"
	"github.com/okian/ridetrack/pkg/metrics"
)

// ChannelState tracks where a channel is in its subscription lifecycle.
type ChannelState int

const (
	StateUnsubscribed ChannelState = iota
	StateSubscribing
	StateSubscribed
)

func (s ChannelState) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unsubscribed"
	}
}

// Client normalizes transport messages into domain events and maintains the
// per-channel subscription state machine:
//
//	Unsubscribed -> Subscribing -> Subscribed -> Unsubscribed
//
// A channel only skips Subscribed when the subscription fails or is
// explicitly cancelled by Unsubscribe.
type Client struct {
	transport Transport
	out       queue.Queue
	log       logger.Logger

	mu       sync.Mutex
	channels map[string]ChannelState
}

// NewClient wires a transport to the session's event queue.
func NewClient(t Transport, out queue.Queue, opts ...Option) *Client {
	c := &Client{
		transport: t,
		out:       out,
		channels:  make(map[string]ChannelState),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("presence")
	}
	return c
}

// Run consumes the transport's message stream until it closes or ctx is
// cancelled. Messages are dispatched in arrival order; the queue preserves
// that order for the reconciler.
func (c *Client) Run(ctx context.Context) {
	msgs := c.transport.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.dispatch(ctx, msg)
		}
	}
}

// Subscribe starts the subscription for a channel. Subscribing a channel that
// is already subscribing or subscribed is a no-op. A transport-level failure
// is surfaced both as an error and as a SubscriptionFailed event so the UI
// can show a degraded state.
func (c *Client) Subscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	if st := c.channels[channel]; st != StateUnsubscribed {
		c.mu.Unlock()
		return nil
	}
	c.channels[channel] = StateSubscribing
	c.mu.Unlock()

	if err := c.transport.Subscribe(ctx, channel); err != nil {
		c.mu.Lock()
		c.channels[channel] = StateUnsubscribed
		c.mu.Unlock()
		c.failSubscription(ctx, channel)
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return nil
}

// Unsubscribe leaves a channel. It is idempotent: leaving a channel that was
// never subscribed, or leaving twice, is a no-op. Calling it while the
// channel is still subscribing cancels the subscription.
func (c *Client) Unsubscribe(ctx context.Context, channel string) error {
	c.mu.Lock()
	st := c.channels[channel]
	if st == StateUnsubscribed {
		c.mu.Unlock()
		return nil
	}
	c.channels[channel] = StateUnsubscribed
	c.mu.Unlock()

	if err := c.transport.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", channel, err)
	}
	return nil
}

// Shutdown unsubscribes every channel the client still holds. Idempotent.
func (c *Client) Shutdown(ctx context.Context) {
	c.mu.Lock()
	var held []string
	for ch, st := range c.channels {
		if st != StateUnsubscribed {
			held = append(held, ch)
		}
	}
	c.mu.Unlock()

	for _, ch := range held {
		if err := c.Unsubscribe(ctx, ch); err != nil {
			c.log.Warn(ctx, "unsubscribe during shutdown failed",
				logger.String("channel", ch), logger.Error(err))
		}
	}
}

// State returns the current lifecycle state of a channel.
func (c *Client) State(channel string) ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[channel]
}

// dispatch translates one raw envelope into zero or one domain event.
// Malformed payloads are logged and dropped: a single bad presence message
// must not take down live tracking for an in-progress delivery.
func (c *Client) dispatch(ctx context.Context, msg Message) {
	switch msg.Event {
	case EventSubscriptionSucceeded:
		c.handleSubscribed(ctx, msg)

	case EventSubscriptionError:
		c.mu.Lock()
		c.channels[msg.Channel] = StateUnsubscribed
		c.mu.Unlock()
		c.failSubscription(ctx, msg.Channel)

	case EventMemberAdded:
		var m wireMember
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			c.drop(ctx, msg, err)
			return
		}
		rl := m.location()
		if !rl.Valid() || rl.ID == "" {
			c.drop(ctx, msg, errBadMember)
			return
		}
		c.emit(ctx, events.PresenceJoined{Member: rl})

	case EventMemberRemoved:
		var m wireMember
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			c.drop(ctx, msg, err)
			return
		}
		if m.ID == "" {
			c.drop(ctx, msg, errBadMember)
			return
		}
		c.emit(ctx, events.PresenceLeft{ID: m.ID})

	case EventLocationUpdate:
		var l wireLocation
		if err := json.Unmarshal(msg.Data, &l); err != nil {
			c.drop(ctx, msg, err)
			return
		}
		rl := model.RiderLocation{ID: l.ID, Name: l.Name, Lat: l.Lat, Lng: l.Lng}
		if !rl.Valid() || rl.ID == "" {
			c.drop(ctx, msg, errBadMember)
			return
		}
		c.emit(ctx, events.LocationUpdated{Location: rl})

	case EventAssigned:
		if ChannelKind(msg.Channel) != "private" {
			c.drop(ctx, msg, errWrongChannel)
			return
		}
		var a wireAssignment
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			c.drop(ctx, msg, err)
			return
		}
		if a.OrderItemID == "" || a.RiderID == "" {
			c.drop(ctx, msg, errBadAssignment)
			return
		}
		c.emit(ctx, events.Assigned{OrderItemID: a.OrderItemID, RiderID: a.RiderID})

	default:
		c.log.Debug(ctx, "ignoring unknown transport event",
			logger.String("event", msg.Event), logger.String("channel", msg.Channel))
	}
}

// handleSubscribed completes the Subscribing -> Subscribed transition. For a
// presence channel the envelope carries the full membership snapshot, which
// becomes a PresenceSynced event; the private channel carries none.
func (c *Client) handleSubscribed(ctx context.Context, msg Message) {
	c.mu.Lock()
	st := c.channels[msg.Channel]
	if st != StateSubscribing {
		c.mu.Unlock()
		c.log.Debug(ctx, "subscription_succeeded for channel not subscribing",
			logger.String("channel", msg.Channel), logger.String("state", st.String()))
		return
	}
	c.channels[msg.Channel] = StateSubscribed
	c.mu.Unlock()

	if ChannelKind(msg.Channel) != "presence" {
		return
	}

	var snap wireSnapshot
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			c.drop(ctx, msg, err)
			return
		}
	}
	members := make([]model.RiderLocation, 0, len(snap.Members))
	for _, m := range snap.Members {
		rl := m.location()
		if !rl.Valid() || rl.ID == "" {
			c.log.Warn(ctx, "skipping invalid member in snapshot",
				logger.String("channel", msg.Channel), logger.String("id", m.ID))
			continue
		}
		members = append(members, rl)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	c.emit(ctx, events.PresenceSynced{Members: members})
}

func (c *Client) failSubscription(ctx context.Context, channel string) {
	metrics.RecordSubscriptionFailure(ChannelKind(channel))
	c.log.Error(ctx, "channel subscription failed", logger.String("channel", channel))
	c.emit(ctx, events.SubscriptionFailed{Channel: channel})
}

func (c *Client) emit(ctx context.Context, ev events.Event) {
	metrics.RecordEvent(events.Kind(ev))
	if !c.out.Enqueue(ctx, ev) {
		c.log.Warn(ctx, "event queue rejected event", logger.String("kind", events.Kind(ev)))
	}
}

func (c *Client) drop(ctx context.Context, msg Message, err error) {
	metrics.RecordEventDropped("malformed")
	c.log.Warn(ctx, "dropping malformed transport payload",
		logger.String("event", msg.Event),
		logger.String("channel", msg.Channel),
		logger.Error(err))
}
