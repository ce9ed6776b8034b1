package mapview

import (
	"sort"
	"sync"
)

// MarkerState is a rendered marker as reported by the MemorySink.
type MarkerState struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Color Color   `json:"color"`
	Label string  `json:"label"`
}

// memMarker is the handle the MemorySink issues.
type memMarker struct {
	seq   int
	state MarkerState
}

// MemorySink is a Sink that records marker state instead of rendering it.
// The gateway serves its snapshot to browsers, which do the actual drawing;
// tests use it as the marker fake.
type MemorySink struct {
	mu      sync.Mutex
	seq     int
	markers map[*memMarker]struct{}
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{markers: make(map[*memMarker]struct{})}
}

// AddMarker records a new marker and returns its handle.
func (s *MemorySink) AddMarker(lat, lng float64, color Color, label string) (Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	m := &memMarker{
		seq:   s.seq,
		state: MarkerState{Lat: lat, Lng: lng, Color: color, Label: label},
	}
	s.markers[m] = struct{}{}
	return m, nil
}

// MoveMarker updates a marker's position.
func (s *MemorySink) MoveMarker(m Marker, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm := m.(*memMarker)
	mm.state.Lat, mm.state.Lng = lat, lng
	return nil
}

// StyleMarker updates a marker's color and label.
func (s *MemorySink) StyleMarker(m Marker, color Color, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm := m.(*memMarker)
	mm.state.Color, mm.state.Label = color, label
	return nil
}

// RemoveMarker drops a marker.
func (s *MemorySink) RemoveMarker(m Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, m.(*memMarker))
	return nil
}

// Snapshot returns the live markers in creation order.
func (s *MemorySink) Snapshot() []MarkerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]*memMarker, 0, len(s.markers))
	for m := range s.markers {
		handles = append(handles, m)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].seq < handles[j].seq })
	out := make([]MarkerState, len(handles))
	for i, m := range handles {
		out[i] = m.state
	}
	return out
}

// Len returns the number of live markers.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}
