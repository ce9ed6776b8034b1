// Package mapview keeps a map provider's marker set in lockstep with the
// reconciler's rider map. The provider itself is out of scope: it is driven
// through the Sink interface, and the diff that decides which marker calls to
// make is a pure function tested on its own.
package mapview

import (
	"fmt"
	"sort"
	"sync"

	"github.com/okian/ridetrack/internal/domain/model"
	"github.com/okian/ridetrack/pkg/metrics"
)

// Color is the marker styling the view uses. Blue is reserved for the
// seller's own fixed marker and never appears on a rider.
type Color string

const (
	ColorAssigned Color = "red"
	ColorNearby   Color = "green"
	ColorSeller   Color = "blue"
)

// Marker is an opaque handle issued by the sink.
type Marker any

// Sink is the map-rendering capability the adapter drives. Implementations
// must not be called concurrently; the owning session serializes access.
type Sink interface {
	AddMarker(lat, lng float64, color Color, label string) (Marker, error)
	MoveMarker(m Marker, lat, lng float64) error
	StyleMarker(m Marker, color Color, label string) error
	RemoveMarker(m Marker) error
}

// markerState is what the adapter remembers about a placed marker.
type markerState struct {
	handle Marker
	lat    float64
	lng    float64
	color  Color
	label  string
}

// Adapter owns the rider marker map plus the seller's fixed marker. The
// marker set is always a function of the rider slice last passed to Sync:
// no marker without a rider, no rider without a marker.
type Adapter struct {
	sink Sink

	mu      sync.Mutex
	markers map[string]markerState
	seller  Marker
}

// New creates an adapter over a sink.
func New(sink Sink) *Adapter {
	return &Adapter{
		sink:    sink,
		markers: make(map[string]markerState),
	}
}

// PlaceSeller creates the seller's own marker from the session's fixed
// coordinates. It is placed once at view init and never touched by Sync.
func (a *Adapter) PlaceSeller(lat, lng float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seller != nil {
		return nil
	}
	m, err := a.sink.AddMarker(lat, lng, ColorSeller, "Your store")
	if err != nil {
		return fmt.Errorf("place seller marker: %w", err)
	}
	metrics.RecordMarkerOp("add")
	a.seller = m
	return nil
}

// Sync diffs the desired rider set against the live markers and applies the
// resulting operations. Sink errors propagate; the adapter's bookkeeping
// only advances past operations that succeeded.
func (a *Adapter) Sync(riders []model.RiderLocation, assignedID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, o := range diff(a.markers, riders, assignedID) {
		switch o.kind {
		case opAdd:
			m, err := a.sink.AddMarker(o.lat, o.lng, o.color, o.label)
			if err != nil {
				return fmt.Errorf("add marker %s: %w", o.id, err)
			}
			a.markers[o.id] = markerState{handle: m, lat: o.lat, lng: o.lng, color: o.color, label: o.label}
		case opMove:
			st := a.markers[o.id]
			if err := a.sink.MoveMarker(st.handle, o.lat, o.lng); err != nil {
				return fmt.Errorf("move marker %s: %w", o.id, err)
			}
			st.lat, st.lng = o.lat, o.lng
			a.markers[o.id] = st
		case opStyle:
			st := a.markers[o.id]
			if err := a.sink.StyleMarker(st.handle, o.color, o.label); err != nil {
				return fmt.Errorf("style marker %s: %w", o.id, err)
			}
			st.color, st.label = o.color, o.label
			a.markers[o.id] = st
		case opRemove:
			st := a.markers[o.id]
			if err := a.sink.RemoveMarker(st.handle); err != nil {
				return fmt.Errorf("remove marker %s: %w", o.id, err)
			}
			delete(a.markers, o.id)
		}
		metrics.RecordMarkerOp(string(o.kind))
	}
	return nil
}

// RiderIDs returns the ids with live markers, sorted.
func (a *Adapter) RiderIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.markers))
	for id := range a.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear removes every rider marker. The seller marker stays for as long as
// the view is mounted.
func (a *Adapter) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, st := range a.markers {
		if err := a.sink.RemoveMarker(st.handle); err != nil {
			return fmt.Errorf("remove marker %s: %w", id, err)
		}
		metrics.RecordMarkerOp("remove")
		delete(a.markers, id)
	}
	return nil
}
