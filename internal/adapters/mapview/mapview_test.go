package mapview_test

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ridetrack/internal/adapters/mapview"
	"github.com/okian/ridetrack/internal/domain/model"
)

var (
	ade  = model.RiderLocation{ID: "r1", Name: "Ade", Lat: 6.52, Lng: 3.38}
	bola = model.RiderLocation{ID: "r2", Name: "Bola", Lat: 6.50, Lng: 3.40}
)

// countingSink wraps a MemorySink and tallies the calls the adapter makes, so
// no-op syncs are observable.
type countingSink struct {
	*mapview.MemorySink
	adds, moves, styles, removes int
}

func newCountingSink() *countingSink {
	return &countingSink{MemorySink: mapview.NewMemorySink()}
}

func (s *countingSink) AddMarker(lat, lng float64, color mapview.Color, label string) (mapview.Marker, error) {
	s.adds++
	return s.MemorySink.AddMarker(lat, lng, color, label)
}

func (s *countingSink) MoveMarker(m mapview.Marker, lat, lng float64) error {
	s.moves++
	return s.MemorySink.MoveMarker(m, lat, lng)
}

func (s *countingSink) StyleMarker(m mapview.Marker, color mapview.Color, label string) error {
	s.styles++
	return s.MemorySink.StyleMarker(m, color, label)
}

func (s *countingSink) RemoveMarker(m mapview.Marker) error {
	s.removes++
	return s.MemorySink.RemoveMarker(m)
}

// failingSink rejects every operation.
type failingSink struct{ err error }

func (s failingSink) AddMarker(float64, float64, mapview.Color, string) (mapview.Marker, error) {
	return nil, s.err
}
func (s failingSink) MoveMarker(mapview.Marker, float64, float64) error       { return s.err }
func (s failingSink) StyleMarker(mapview.Marker, mapview.Color, string) error { return s.err }
func (s failingSink) RemoveMarker(mapview.Marker) error                       { return s.err }

func find(states []mapview.MarkerState, label string) (mapview.MarkerState, bool) {
	for _, st := range states {
		if st.Label == label {
			return st, true
		}
	}
	return mapview.MarkerState{}, false
}

func TestAdapterSync(t *testing.T) {
	Convey("Given an adapter over a counting sink", t, func() {
		sink := newCountingSink()
		a := mapview.New(sink)

		Convey("When riders appear", func() {
			err := a.Sync([]model.RiderLocation{ade, bola}, "")

			Convey("Then each rider gets exactly one marker", func() {
				So(err, ShouldBeNil)
				So(a.RiderIDs(), ShouldResemble, []string{"r1", "r2"})
				So(sink.Len(), ShouldEqual, 2)
			})

			Convey("Then unassigned riders render green with the bare name", func() {
				st, ok := find(sink.Snapshot(), "Ade")
				So(ok, ShouldBeTrue)
				So(st.Color, ShouldEqual, mapview.ColorNearby)
				So(st.Lat, ShouldEqual, 6.52)
				So(st.Lng, ShouldEqual, 3.38)
			})

			Convey("And an identical sync makes no sink calls", func() {
				adds, moves, styles := sink.adds, sink.moves, sink.styles
				So(a.Sync([]model.RiderLocation{ade, bola}, ""), ShouldBeNil)
				So(sink.adds, ShouldEqual, adds)
				So(sink.moves, ShouldEqual, moves)
				So(sink.styles, ShouldEqual, styles)
				So(sink.removes, ShouldEqual, 0)
			})

			Convey("And a moved rider only moves its marker", func() {
				moved := ade
				moved.Lat, moved.Lng = 6.53, 3.37
				So(a.Sync([]model.RiderLocation{moved, bola}, ""), ShouldBeNil)
				So(sink.moves, ShouldEqual, 1)
				So(sink.styles, ShouldEqual, 0)
				st, _ := find(sink.Snapshot(), "Ade")
				So(st.Lat, ShouldEqual, 6.53)
			})

			Convey("And a departed rider's marker is removed", func() {
				So(a.Sync([]model.RiderLocation{bola}, ""), ShouldBeNil)
				So(a.RiderIDs(), ShouldResemble, []string{"r2"})
				So(sink.removes, ShouldEqual, 1)
			})
		})

		Convey("When the assignment flips between riders", func() {
			So(a.Sync([]model.RiderLocation{ade, bola}, ""), ShouldBeNil)
			So(a.Sync([]model.RiderLocation{ade, bola}, "r1"), ShouldBeNil)

			Convey("Then the assigned rider restyles red with the assigned label", func() {
				st, ok := find(sink.Snapshot(), "Assigned: Ade")
				So(ok, ShouldBeTrue)
				So(st.Color, ShouldEqual, mapview.ColorAssigned)
			})

			Convey("And flipping to the other rider restyles both", func() {
				styles := sink.styles
				So(a.Sync([]model.RiderLocation{ade, bola}, "r2"), ShouldBeNil)
				So(sink.styles, ShouldEqual, styles+2)

				st, ok := find(sink.Snapshot(), "Assigned: Bola")
				So(ok, ShouldBeTrue)
				So(st.Color, ShouldEqual, mapview.ColorAssigned)

				st, ok = find(sink.Snapshot(), "Ade")
				So(ok, ShouldBeTrue)
				So(st.Color, ShouldEqual, mapview.ColorNearby)
			})
		})
	})
}

func TestAdapterSeller(t *testing.T) {
	Convey("Given an adapter with a placed seller marker", t, func() {
		sink := newCountingSink()
		a := mapview.New(sink)
		So(a.PlaceSeller(6.5244, 3.3792), ShouldBeNil)

		Convey("Then the seller marker is blue at the store's coordinates", func() {
			st := sink.Snapshot()[0]
			So(st.Color, ShouldEqual, mapview.ColorSeller)
			So(st.Label, ShouldEqual, "Your store")
			So(st.Lat, ShouldEqual, 6.5244)
		})

		Convey("Then placing it again is a no-op", func() {
			So(a.PlaceSeller(1, 1), ShouldBeNil)
			So(sink.Len(), ShouldEqual, 1)
			So(sink.adds, ShouldEqual, 1)
		})

		Convey("Then rider syncs never touch it", func() {
			So(a.Sync([]model.RiderLocation{ade}, ""), ShouldBeNil)
			So(a.Sync(nil, ""), ShouldBeNil)
			st, ok := find(sink.Snapshot(), "Your store")
			So(ok, ShouldBeTrue)
			So(st.Color, ShouldEqual, mapview.ColorSeller)
		})

		Convey("Then Clear removes riders but keeps the seller", func() {
			So(a.Sync([]model.RiderLocation{ade, bola}, ""), ShouldBeNil)
			So(a.Clear(), ShouldBeNil)
			So(a.RiderIDs(), ShouldBeEmpty)
			So(sink.Len(), ShouldEqual, 1)
			_, ok := find(sink.Snapshot(), "Your store")
			So(ok, ShouldBeTrue)
		})
	})
}

func TestAdapterSinkErrors(t *testing.T) {
	Convey("Given a sink that rejects operations", t, func() {
		errBoom := errors.New("render failed")
		a := mapview.New(failingSink{err: errBoom})

		Convey("When a sync needs an add", func() {
			err := a.Sync([]model.RiderLocation{ade}, "")

			Convey("Then the error propagates and no marker is booked", func() {
				So(errors.Is(err, errBoom), ShouldBeTrue)
				So(a.RiderIDs(), ShouldBeEmpty)
			})
		})

		Convey("When placing the seller fails", func() {
			err := a.PlaceSeller(1, 2)

			Convey("Then the error propagates and a retry still attempts the add", func() {
				So(errors.Is(err, errBoom), ShouldBeTrue)
				So(errors.Is(a.PlaceSeller(1, 2), errBoom), ShouldBeTrue)
			})
		})
	})
}
