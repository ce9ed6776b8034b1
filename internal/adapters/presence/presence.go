// Package presence owns the lifecycle of a tracking session's two channel
// subscriptions (the shared geographic presence channel and the private
// per-store channel) and normalizes raw transport payloads into the domain
// event union. Nothing downstream of this package sees transport vocabulary.
package presence

import (
	"context"
	"encoding/json"
	"strings"
)

// Wire event names. These are bit-exact contracts with the backend and the
// push gateway; other collaborators publish under these names.
const (
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventSubscriptionError     = "subscription_error"
	EventMemberAdded           = "member_added"
	EventMemberRemoved         = "member_removed"
	EventLocationUpdate        = "rider.location.update"
	EventAssigned              = "order_item.assigned"
)

// Channel name prefixes, also bit-exact.
const (
	nearbyPrefix = "presence-nearby-"
	sellerPrefix = "private-seller-"
)

// NearbyChannel returns the shared presence channel for a geo bucket.
func NearbyChannel(bucket string) string { return nearbyPrefix + bucket }

// SellerChannel returns the private per-store channel.
func SellerChannel(storeID string) string { return sellerPrefix + storeID }

// ChannelKind classifies a channel name for metrics and routing.
func ChannelKind(channel string) string {
	switch {
	case strings.HasPrefix(channel, "presence-"):
		return "presence"
	case strings.HasPrefix(channel, "private-"):
		return "private"
	default:
		return "unknown"
	}
}

// Message is a raw envelope as delivered by a Transport.
type Message struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Transport is the pub/sub connection the client rides on. Implementations
// own their reconnection policy; the client never retries on their behalf.
type Transport interface {
	// Connect establishes the underlying connection.
	Connect(ctx context.Context) error

	// Subscribe joins a channel. For presence channels the transport is
	// expected to deliver a subscription_succeeded message carrying the
	// membership snapshot.
	Subscribe(ctx context.Context, channel string) error

	// Unsubscribe leaves a channel. Leaving a channel that was never joined
	// is a no-op for implementations.
	Unsubscribe(ctx context.Context, channel string) error

	// Messages returns the stream of raw envelopes in arrival order.
	// The channel closes when the connection ends.
	Messages() <-chan Message

	// Close tears the connection down. Safe to call more than once.
	Close() error
}
