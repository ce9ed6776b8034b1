// Package reconcile owns the authoritative in-memory view of the riders
// relevant to one tracking session: everyone on the nearby presence channel
// plus the rider assigned to the tracked order item.
//
// Apply folds events in strict arrival order and performs no I/O. When an
// event needs external data (an assigned rider the map has never seen), Apply
// returns an effect for the caller to run asynchronously; the result comes
// back as a follow-up event so sequencing stays in one place.
package reconcile

import (
	"sort"

	"github.com/okian/ridetrack/internal/domain/events"
	"github.com/okian/ridetrack/internal/domain/model"
)

// Effect is a follow-up action the caller must run after Apply returns.
type Effect interface {
	isEffect()
}

// FetchRider asks the caller to hydrate an assigned rider that is not yet in
// the map, then feed the result back as events.AssignmentResolved carrying
// the same Seq. A result whose Seq no longer matches the latest pending
// assignment is discarded on arrival.
type FetchRider struct {
	RiderID string
	Seq     uint64
}

func (FetchRider) isEffect() {}

// Reconciler holds the rider map and assignment state for a single order
// item. It is not safe for concurrent use; the owning session applies events
// from one goroutine and guards reads itself.
type Reconciler struct {
	orderItemID string
	riders      map[string]model.RiderLocation
	assignedID  string

	// seq is a monotonic counter over hydration requests; pendingSeq is the
	// seq of the one still outstanding (0 = none). Monotonicity is what lets
	// a superseded fetch result be recognized and dropped.
	seq        uint64
	pendingSeq uint64
}

// New creates a reconciler tracking the given order item.
func New(orderItemID string) *Reconciler {
	return &Reconciler{
		orderItemID: orderItemID,
		riders:      make(map[string]model.RiderLocation),
	}
}

// OrderItemID returns the order item this reconciler tracks.
func (r *Reconciler) OrderItemID() string { return r.orderItemID }

// Apply folds one event into the rider map and returns a follow-up effect,
// if any.
func (r *Reconciler) Apply(ev events.Event) Effect {
	switch e := ev.(type) {
	case events.PresenceSynced:
		next := make(map[string]model.RiderLocation, len(e.Members))
		for _, m := range e.Members {
			next[m.ID] = m
		}
		// An assigned rider must survive a resync that omits it; losing
		// presence membership never erases the seller's view of their rider.
		if r.assignedID != "" {
			if _, ok := next[r.assignedID]; !ok {
				if cur, ok := r.riders[r.assignedID]; ok {
					next[r.assignedID] = cur
				}
			}
		}
		r.riders = next

	case events.PresenceJoined:
		r.riders[e.Member.ID] = e.Member

	case events.PresenceLeft:
		if e.ID == r.assignedID {
			return nil // pinned until reassigned or the session ends
		}
		delete(r.riders, e.ID)

	case events.LocationUpdated:
		r.riders[e.Location.ID] = e.Location

	case events.Assigned:
		if e.OrderItemID != r.orderItemID {
			return nil // another order item's assignment
		}
		if _, ok := r.riders[e.RiderID]; ok {
			r.assignedID = e.RiderID
			r.pendingSeq = 0 // supersedes any in-flight hydration
			return nil
		}
		// Unknown rider: assignment takes effect only once a full record is
		// hydrated. assignedID stays as-is until then.
		r.seq++
		r.pendingSeq = r.seq
		return FetchRider{RiderID: e.RiderID, Seq: r.seq}

	case events.AssignmentResolved:
		if r.pendingSeq == 0 || e.Seq != r.pendingSeq {
			return nil // superseded or irrelevant hydration result
		}
		r.riders[e.Rider.ID] = e.Rider
		r.assignedID = e.Rider.ID
		r.pendingSeq = 0

	case events.SubscriptionFailed:
		// No mutation: the rider map keeps its last-known-good state.
	}
	return nil
}

// CurrentRiders returns the riders currently in the map, ordered by id for
// stable output.
func (r *Reconciler) CurrentRiders() []model.RiderLocation {
	out := make([]model.RiderLocation, 0, len(r.riders))
	for _, rl := range r.riders {
		out = append(out, rl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssignedRider returns the rider assigned to the tracked order item, if any.
func (r *Reconciler) AssignedRider() (model.RiderLocation, bool) {
	if r.assignedID == "" {
		return model.RiderLocation{}, false
	}
	rl, ok := r.riders[r.assignedID]
	return rl, ok
}

// AssignedID returns the assigned rider's id, or "" when no assignment has
// taken effect.
func (r *Reconciler) AssignedID() string { return r.assignedID }

// Len returns the number of riders currently tracked.
func (r *Reconciler) Len() int { return len(r.riders) }
