package mapview

import (
	"sort"

	"github.com/okian/ridetrack/internal/domain/model"
)

type opKind string

const (
	opAdd    opKind = "add"
	opMove   opKind = "move"
	opStyle  opKind = "style"
	opRemove opKind = "remove"
)

// op is one marker mutation the sink must perform.
type op struct {
	kind  opKind
	id    string
	lat   float64
	lng   float64
	color Color
	label string
}

// riderStyle returns the color and label a rider's marker should carry.
func riderStyle(r model.RiderLocation, assignedID string) (Color, string) {
	if r.ID == assignedID {
		return ColorAssigned, "Assigned: " + r.Name
	}
	return ColorNearby, r.Name
}

// diff computes the ordered marker operations that make current equal to
// desired: creations first, then position and style refreshes, then
// removals. It mutates nothing and performs no I/O. Ids are processed in
// sorted order so the operation sequence is deterministic.
func diff(current map[string]markerState, desired []model.RiderLocation, assignedID string) []op {
	byID := make(map[string]model.RiderLocation, len(desired))
	for _, r := range desired {
		byID[r.ID] = r
	}

	ids := make([]string, 0, len(desired))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var ops []op

	// New and surviving riders.
	for _, id := range ids {
		r := byID[id]
		color, label := riderStyle(r, assignedID)
		st, exists := current[id]
		if !exists {
			ops = append(ops, op{kind: opAdd, id: id, lat: r.Lat, lng: r.Lng, color: color, label: label})
			continue
		}
		if st.lat != r.Lat || st.lng != r.Lng {
			ops = append(ops, op{kind: opMove, id: id, lat: r.Lat, lng: r.Lng})
		}
		if st.color != color || st.label != label {
			ops = append(ops, op{kind: opStyle, id: id, color: color, label: label})
		}
	}

	// Markers whose rider is gone.
	stale := make([]string, 0)
	for id := range current {
		if _, ok := byID[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	for _, id := range stale {
		ops = append(ops, op{kind: opRemove, id: id})
	}

	return ops
}
