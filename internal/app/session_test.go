package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ridetrack/internal/adapters/mapview"
	"github.com/okian/ridetrack/internal/adapters/presence"
	"github.com/okian/ridetrack/internal/app"
	"github.com/okian/ridetrack/internal/domain/model"
	"github.com/okian/ridetrack/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeTransport records subscriptions and lets tests push gateway messages.
type fakeTransport struct {
	mu           sync.Mutex
	msgs         chan presence.Message
	subscribed   []string
	unsubscribed []string
	closed       bool
	subscribeErr map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		msgs:         make(chan presence.Message, 64),
		subscribeErr: make(map[string]error),
	}
}

func (t *fakeTransport) Connect(context.Context) error { return nil }

func (t *fakeTransport) Subscribe(_ context.Context, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.subscribeErr[channel]; err != nil {
		return err
	}
	t.subscribed = append(t.subscribed, channel)
	return nil
}

func (t *fakeTransport) Unsubscribe(_ context.Context, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubscribed = append(t.unsubscribed, channel)
	return nil
}

func (t *fakeTransport) Messages() <-chan presence.Message { return t.msgs }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) channels() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.subscribed...)
}

func (t *fakeTransport) push(channel, event, data string) {
	t.msgs <- presence.Message{Channel: channel, Event: event, Data: json.RawMessage(data)}
}

// fakeFetcher serves rider details, optionally blocking until released.
type fakeFetcher struct {
	mu      sync.Mutex
	riders  map[string]model.RiderLocation
	err     error
	block   chan struct{}
	fetched []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{riders: make(map[string]model.RiderLocation)}
}

func (f *fakeFetcher) Rider(_ context.Context, riderID string) (model.RiderLocation, error) {
	f.mu.Lock()
	block := f.block
	f.fetched = append(f.fetched, riderID)
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.RiderLocation{}, f.err
	}
	rl, ok := f.riders[riderID]
	if !ok {
		return model.RiderLocation{}, errors.New("no such rider")
	}
	return rl, nil
}

type fakeReady struct {
	mu       sync.Mutex
	itemID   string
	lat, lng float64
	err      error
}

func (r *fakeReady) MarkReady(_ context.Context, itemID string, sellerLat, sellerLng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemID, r.lat, r.lng = itemID, sellerLat, sellerLng
	return r.err
}

// eventually polls until the condition holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func markerLabels(states []mapview.MarkerState) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = st.Label
	}
	return out
}

const (
	nearbyCh = "presence-nearby-s14mh"
	sellerCh = "private-seller-store-1"
)

func newSession(t *fakeTransport, f *fakeFetcher, r *fakeReady) (*app.Session, error) {
	return app.NewSession("store-1", "item-1", 6.5244, 3.3792, t, f, r)
}

func TestSessionStart(t *testing.T) {
	Convey("Given a session for a Lagos store", t, func() {
		transport := newFakeTransport()
		s, err := newSession(transport, newFakeFetcher(), &fakeReady{})
		So(err, ShouldBeNil)
		Reset(s.Stop)

		Convey("When the session starts", func() {
			So(s.Start(context.Background()), ShouldBeNil)

			Convey("Then it subscribes the bucketed presence channel and the store's private channel", func() {
				So(transport.channels(), ShouldResemble, []string{nearbyCh, sellerCh})
			})

			Convey("Then the seller marker is placed before any rider arrives", func() {
				So(markerLabels(s.Markers()), ShouldResemble, []string{"Your store"})
				So(s.Markers()[0].Color, ShouldEqual, mapview.ColorSeller)
			})

			Convey("And starting again is a no-op", func() {
				So(s.Start(context.Background()), ShouldBeNil)
				So(len(transport.channels()), ShouldEqual, 2)
			})
		})

		Convey("When seller coordinates are out of range", func() {
			_, err := app.NewSession("store-1", "item-1", 91, 0, newFakeTransport(), newFakeFetcher(), &fakeReady{})

			Convey("Then creation fails with the seller location sentinel", func() {
				So(errors.Is(err, app.ErrSellerLocation), ShouldBeTrue)
			})
		})
	})
}

func TestSessionTracking(t *testing.T) {
	Convey("Given a started session", t, func() {
		transport := newFakeTransport()
		fetcher := newFakeFetcher()
		s, err := newSession(transport, fetcher, &fakeReady{})
		So(err, ShouldBeNil)
		So(s.Start(context.Background()), ShouldBeNil)
		Reset(s.Stop)

		Convey("When the presence snapshot lands", func() {
			transport.push(nearbyCh, "subscription_succeeded",
				`{"members":{"r1":{"id":"r1","info":{"name":"Ade","lat":6.52,"lng":3.38}}}}`)

			Convey("Then the rider shows up green on the map", func() {
				So(eventually(func() bool { return len(s.Riders()) == 1 }), ShouldBeTrue)
				labels := markerLabels(s.Markers())
				So(labels, ShouldContain, "Ade")
				So(labels, ShouldContain, "Your store")
			})

			Convey("And a known-rider assignment flips its marker red without a fetch", func() {
				So(eventually(func() bool { return len(s.Riders()) == 1 }), ShouldBeTrue)
				transport.push(sellerCh, "order_item.assigned", `{"orderItemId":"item-1","riderId":"r1"}`)

				So(eventually(func() bool {
					rl, ok := s.Assigned()
					return ok && rl.ID == "r1"
				}), ShouldBeTrue)
				So(markerLabels(s.Markers()), ShouldContain, "Assigned: Ade")
				So(fetcher.fetched, ShouldBeEmpty)
			})

			Convey("And a departure removes the rider's marker", func() {
				So(eventually(func() bool { return len(s.Riders()) == 1 }), ShouldBeTrue)
				transport.push(nearbyCh, "member_removed", `{"id":"r1"}`)

				So(eventually(func() bool { return len(s.Riders()) == 0 }), ShouldBeTrue)
				So(markerLabels(s.Markers()), ShouldResemble, []string{"Your store"})
			})
		})

		Convey("When the assigned rider is outside the presence bucket", func() {
			fetcher.riders["r9"] = model.RiderLocation{ID: "r9", Name: "Chi", Lat: 6.51, Lng: 3.39}
			transport.push(sellerCh, "order_item.assigned", `{"orderItemId":"item-1","riderId":"r9"}`)

			Convey("Then the assignment completes once details are hydrated", func() {
				So(eventually(func() bool {
					rl, ok := s.Assigned()
					return ok && rl.Name == "Chi"
				}), ShouldBeTrue)
				So(markerLabels(s.Markers()), ShouldContain, "Assigned: Chi")
			})
		})

		Convey("When the detail fetch fails", func() {
			fetcher.mu.Lock()
			fetcher.err = errors.New("backend down")
			fetcher.mu.Unlock()
			transport.push(sellerCh, "order_item.assigned", `{"orderItemId":"item-1","riderId":"r9"}`)

			Convey("Then the assignment is not applied and the error is surfaced", func() {
				So(eventually(func() bool {
					_, ok := s.Stats()["last_error"]
					return ok
				}), ShouldBeTrue)
				_, ok := s.Assigned()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When an assignment names a different order item", func() {
			transport.push(sellerCh, "order_item.assigned", `{"orderItemId":"other","riderId":"r1"}`)
			transport.push(nearbyCh, "member_added", `{"id":"r1","info":{"name":"Ade","lat":6.52,"lng":3.38}}`)

			Convey("Then it is ignored", func() {
				So(eventually(func() bool { return len(s.Riders()) == 1 }), ShouldBeTrue)
				_, ok := s.Assigned()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a channel subscription is rejected by the gateway", func() {
			transport.push(nearbyCh, "subscription_error", `{"message":"denied"}`)

			Convey("Then the session reports the degraded channel and keeps running", func() {
				So(eventually(func() bool { return len(s.Degraded()) == 1 }), ShouldBeTrue)
				So(s.Degraded(), ShouldResemble, []string{nearbyCh})

				fetcher.mu.Lock()
				fetcher.riders["r9"] = model.RiderLocation{ID: "r9", Name: "Chi", Lat: 6.51, Lng: 3.39}
				fetcher.mu.Unlock()
				transport.push(sellerCh, "order_item.assigned", `{"orderItemId":"item-1","riderId":"r9"}`)
				So(eventually(func() bool {
					_, ok := s.Assigned()
					return ok
				}), ShouldBeTrue)
			})
		})
	})
}

func TestSessionMarkReady(t *testing.T) {
	Convey("Given a started session", t, func() {
		ready := &fakeReady{}
		s, err := newSession(newFakeTransport(), newFakeFetcher(), ready)
		So(err, ShouldBeNil)
		So(s.Start(context.Background()), ShouldBeNil)
		Reset(s.Stop)

		Convey("When the seller marks the item ready", func() {
			So(s.MarkReady(context.Background()), ShouldBeNil)

			Convey("Then the backend gets the order item with the seller's coordinates", func() {
				So(ready.itemID, ShouldEqual, "item-1")
				So(ready.lat, ShouldEqual, 6.5244)
				So(ready.lng, ShouldEqual, 3.3792)
			})
		})

		Convey("When the backend rejects the call", func() {
			ready.err = errors.New("already assigned")

			Convey("Then the error passes through untouched", func() {
				So(s.MarkReady(context.Background()), ShouldNotBeNil)
			})
		})
	})
}

func TestSessionStop(t *testing.T) {
	Convey("Given a started session with a rider on the map", t, func() {
		transport := newFakeTransport()
		fetcher := newFakeFetcher()
		s, err := newSession(transport, fetcher, &fakeReady{})
		So(err, ShouldBeNil)
		So(s.Start(context.Background()), ShouldBeNil)

		transport.push(nearbyCh, "member_added", `{"id":"r1","info":{"name":"Ade","lat":6.52,"lng":3.38}}`)
		So(eventually(func() bool { return len(s.Riders()) == 1 }), ShouldBeTrue)

		Convey("When the session stops", func() {
			s.Stop()

			Convey("Then both channels are released and the transport is closed", func() {
				So(len(transport.unsubscribed), ShouldEqual, 2)
				So(transport.closed, ShouldBeTrue)
			})

			Convey("Then rider markers are cleared but the seller marker remains", func() {
				So(markerLabels(s.Markers()), ShouldResemble, []string{"Your store"})
			})

			Convey("And stopping again is a no-op", func() {
				s.Stop()
				So(len(transport.unsubscribed), ShouldEqual, 2)
			})
		})

		Convey("When a detail fetch is still in flight at teardown", func() {
			release := make(chan struct{})
			fetcher.mu.Lock()
			fetcher.block = release
			fetcher.riders["r9"] = model.RiderLocation{ID: "r9", Name: "Chi", Lat: 6.51, Lng: 3.39}
			fetcher.mu.Unlock()
			transport.push(sellerCh, "order_item.assigned", `{"orderItemId":"item-1","riderId":"r9"}`)
			So(eventually(func() bool {
				fetcher.mu.Lock()
				defer fetcher.mu.Unlock()
				return len(fetcher.fetched) == 1
			}), ShouldBeTrue)

			s.Stop()
			close(release)

			Convey("Then the late result is discarded instead of reviving the session", func() {
				time.Sleep(50 * time.Millisecond)
				_, ok := s.Assigned()
				So(ok, ShouldBeFalse)
			})
		})
	})
}
