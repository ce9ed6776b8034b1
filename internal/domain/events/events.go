// Package events defines the normalized event union flowing from the
// presence layer into the reconciler. The transport vocabulary stops at the
// presence client; everything downstream speaks only in these types.
package events

import "github.com/okian/ridetrack/internal/domain/model"

// Event is the closed union of inputs the reconciler accepts. All
// implementations live in this package.
type Event interface {
	isEvent()
}

// PresenceSynced carries the full membership snapshot delivered when a
// presence channel subscription succeeds.
type PresenceSynced struct {
	Members []model.RiderLocation
}

// PresenceJoined reports a rider joining the presence channel.
type PresenceJoined struct {
	Member model.RiderLocation
}

// PresenceLeft reports a rider leaving the presence channel.
type PresenceLeft struct {
	ID string
}

// LocationUpdated is an out-of-band position ping; it does not imply a
// membership change.
type LocationUpdated struct {
	Location model.RiderLocation
}

// Assigned is delivered on the private per-store channel when the backend
// assigns a rider to an order item.
type Assigned struct {
	OrderItemID string
	RiderID     string
}

// AssignmentResolved feeds a hydrated rider back into the reconciler after
// the detail fetch requested by a FetchRider effect completes. Seq ties the
// result to the Assigned event that triggered it.
type AssignmentResolved struct {
	Seq   uint64
	Rider model.RiderLocation
}

// SubscriptionFailed signals that a channel subscription could not be
// established. It never mutates rider state; the session surfaces it as a
// degraded-view indicator.
type SubscriptionFailed struct {
	Channel string
}

func (PresenceSynced) isEvent()     {}
func (PresenceJoined) isEvent()     {}
func (PresenceLeft) isEvent()       {}
func (LocationUpdated) isEvent()    {}
func (Assigned) isEvent()           {}
func (AssignmentResolved) isEvent() {}
func (SubscriptionFailed) isEvent() {}

// Kind returns a short name for metrics and logging.
func Kind(e Event) string {
	switch e.(type) {
	case PresenceSynced:
		return "presence_synced"
	case PresenceJoined:
		return "presence_joined"
	case PresenceLeft:
		return "presence_left"
	case LocationUpdated:
		return "location_updated"
	case Assigned:
		return "assigned"
	case AssignmentResolved:
		return "assignment_resolved"
	case SubscriptionFailed:
		return "subscription_failed"
	default:
		return "unknown"
	}
}
