// Package app hosts tracking sessions: one per seller watching one order
// item's fulfillment. A session wires the presence client, the reconciler
// and the map adapter together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ridetrack/internal/adapters/mapview"
	"github.com/okian/ridetrack/internal/adapters/mq/queue"
	"github.com/okian/ridetrack/internal/adapters/presence"
	"github.com/okian/ridetrack/internal/domain/events"
	"github.com/okian/ridetrack/internal/domain/geobucket"
	"github.com/okian/ridetrack/internal/domain/model"
	"github.com/okian/ridetrack/internal/domain/reconcile"
	"github.com/okian/ridetrack/pkg/logger"
	"github.com/okian/ridetrack/pkg/metrics"
)

const stopTimeout = 5 * time.Second

// ErrSellerLocation reports missing or invalid seller coordinates. A session
// cannot exist without them: the geo bucket and the mark-ready call both
// need a resolved position.
var ErrSellerLocation = errors.New("seller location missing or out of range")

// RiderFetcher hydrates an assigned rider the presence map has never seen.
type RiderFetcher interface {
	Rider(ctx context.Context, riderID string) (model.RiderLocation, error)
}

// ReadyMarker triggers the backend's rider-matching flow for an order item.
type ReadyMarker interface {
	MarkReady(ctx context.Context, itemID string, sellerLat, sellerLng float64) error
}

// Session is a single live tracking view. All reconciler mutations happen on
// one goroutine, in event arrival order; reads from the HTTP layer go
// through the session's lock.
type Session struct {
	id          string
	storeID     string
	orderItemID string
	sellerLat   float64
	sellerLng   float64

	transport presence.Transport
	fetcher   RiderFetcher
	ready     ReadyMarker
	sink      mapview.Sink
	memSink   *mapview.MemorySink
	queueSize int
	log       logger.Logger

	adapter *mapview.Adapter
	client  *presence.Client
	events  queue.Queue
	rec     *reconcile.Reconciler

	mu       sync.RWMutex
	started  bool
	degraded map[string]bool
	lastErr  string

	// alive guards late detail-fetch results: a fetch resolving after
	// teardown must not feed a session that is no longer mounted.
	alive    atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewSession builds a session. The transport is owned by the session from
// here on and closed on Stop.
func NewSession(storeID, orderItemID string, sellerLat, sellerLng float64,
	transport presence.Transport, fetcher RiderFetcher, ready ReadyMarker,
	opts ...Option) (*Session, error) {

	seller := model.RiderLocation{ID: "seller", Lat: sellerLat, Lng: sellerLng}
	if !seller.Valid() {
		return nil, fmt.Errorf("%w: lat=%v lng=%v", ErrSellerLocation, sellerLat, sellerLng)
	}

	s := &Session{
		id:          uuid.NewString(),
		storeID:     storeID,
		orderItemID: orderItemID,
		sellerLat:   sellerLat,
		sellerLng:   sellerLng,
		transport:   transport,
		fetcher:     fetcher,
		ready:       ready,
		degraded:    make(map[string]bool),
		done:        make(chan struct{}),
		rec:         reconcile.New(orderItemID),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("session")
	}
	if s.sink == nil {
		s.memSink = mapview.NewMemorySink()
		s.sink = s.memSink
	}
	s.adapter = mapview.New(s.sink)

	qopts := []queue.Option{queue.WithName(s.id)}
	if s.queueSize > 0 {
		qopts = append(qopts, queue.WithCapacity(s.queueSize))
	}
	s.events = queue.NewInMemoryQueue(qopts...)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// OrderItemID returns the order item the session tracks.
func (s *Session) OrderItemID() string { return s.orderItemID }

// Start places the seller marker, connects the transport and subscribes both
// channels. The map view is initialized before any subscription starts so
// marker creation never races an empty map.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.adapter.PlaceSeller(s.sellerLat, s.sellerLng); err != nil {
		return err
	}

	bucket, err := geobucket.Encode(s.sellerLat, s.sellerLng)
	if err != nil {
		return fmt.Errorf("geo bucket: %w", err)
	}

	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.client = presence.NewClient(s.transport, s.events, presence.WithLogger(s.log))
	go s.client.Run(runCtx)
	go s.loop(runCtx)
	s.alive.Store(true)

	nearby := presence.NearbyChannel(bucket)
	seller := presence.SellerChannel(s.storeID)
	for _, ch := range []string{nearby, seller} {
		if err := s.client.Subscribe(ctx, ch); err != nil {
			// Already surfaced as a SubscriptionFailed event; the session
			// keeps running in a degraded state.
			s.log.Error(ctx, "subscription failed", logger.String("channel", ch), logger.Error(err))
		}
	}

	metrics.SessionStarted()
	s.log.Info(ctx, "tracking session started",
		logger.String("session", s.id),
		logger.String("store", s.storeID),
		logger.String("order_item", s.orderItemID),
		logger.String("bucket", bucket),
	)
	return nil
}

// loop applies events strictly in arrival order until the queue closes.
func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	for ev := range s.events.Dequeue() {
		s.apply(ctx, ev)
	}
}

func (s *Session) apply(ctx context.Context, ev queue.Event) {
	if sf, ok := ev.(events.SubscriptionFailed); ok {
		s.mu.Lock()
		s.degraded[sf.Channel] = true
		s.mu.Unlock()
		s.log.Warn(ctx, "channel degraded", logger.String("channel", sf.Channel))
		return
	}

	s.mu.Lock()
	eff := s.rec.Apply(ev)
	riders := s.rec.CurrentRiders()
	assignedID := s.rec.AssignedID()
	s.mu.Unlock()

	metrics.UpdateRiderMapSize(s.id, len(riders))

	if err := s.adapter.Sync(riders, assignedID); err != nil {
		s.log.Error(ctx, "marker sync failed", logger.Error(err))
		s.setLastErr(err)
	}

	if f, ok := eff.(reconcile.FetchRider); ok {
		go s.hydrate(ctx, f)
	}
}

// hydrate resolves an assigned rider's details off the apply loop so the
// fetch never blocks delivery of subsequent events. The result re-enters the
// queue as an AssignmentResolved event; the reconciler drops it if a later
// assignment superseded it, and the alive flag drops it if the session tore
// down while the fetch was in flight.
func (s *Session) hydrate(ctx context.Context, f reconcile.FetchRider) {
	rl, err := s.fetcher.Rider(ctx, f.RiderID)
	if err != nil {
		// Assignment is not applied on a failed fetch; surface for retry.
		s.log.Error(ctx, "rider detail fetch failed",
			logger.String("rider", f.RiderID), logger.Error(err))
		s.setLastErr(err)
		return
	}
	if !s.alive.Load() {
		return
	}
	s.events.Enqueue(ctx, events.AssignmentResolved{Seq: f.Seq, Rider: rl})
}

// MarkReady tells the backend the order item is ready for pickup. The
// session's seller coordinates were validated at creation, so the request is
// never sent without a resolved position.
func (s *Session) MarkReady(ctx context.Context) error {
	return s.ready.MarkReady(ctx, s.orderItemID, s.sellerLat, s.sellerLng)
}

// Riders returns the current rider map.
func (s *Session) Riders() []model.RiderLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.CurrentRiders()
}

// Assigned returns the assigned rider, if an assignment has taken effect.
func (s *Session) Assigned() (model.RiderLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.AssignedRider()
}

// Markers returns the rendered marker state when the session runs on the
// built-in memory sink; nil otherwise.
func (s *Session) Markers() []mapview.MarkerState {
	if s.memSink == nil {
		return nil
	}
	return s.memSink.Snapshot()
}

// Degraded lists channels whose subscription failed, sorted.
func (s *Session) Degraded() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.degraded))
	for ch := range s.degraded {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Stats returns session statistics for monitoring.
func (s *Session) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := map[string]any{
		"session":    s.id,
		"store":      s.storeID,
		"order_item": s.orderItemID,
		"riders":     s.rec.Len(),
		"assigned":   s.rec.AssignedID(),
		"queued":     s.events.Len(),
	}
	if len(s.degraded) > 0 {
		chans := make([]string, 0, len(s.degraded))
		for ch := range s.degraded {
			chans = append(chans, ch)
		}
		sort.Strings(chans)
		stats["degraded"] = chans
	}
	if s.lastErr != "" {
		stats["last_error"] = s.lastErr
	}
	return stats
}

// Stop tears the session down: unsubscribes both channels, drains and closes
// the event queue, closes the transport and clears rider markers. Idempotent;
// stopping a session that never started is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}

	s.stopOnce.Do(func() {
		s.alive.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()

		// client and cancel are nil when Start failed before the loops
		// came up; teardown still closes the queue and transport.
		if s.client != nil {
			s.client.Shutdown(ctx)
		}
		_ = s.events.Close()
		if s.cancel != nil {
			select {
			case <-s.done:
			case <-ctx.Done():
				s.log.Warn(ctx, "apply loop did not drain before timeout")
			}
			s.cancel()
		}
		_ = s.transport.Close()
		if err := s.adapter.Clear(); err != nil {
			s.log.Warn(ctx, "clearing markers failed", logger.Error(err))
		}

		metrics.SessionEnded()
		metrics.ForgetSession(s.id)
		s.log.Info(ctx, "tracking session stopped", logger.String("session", s.id))
	})
}

func (s *Session) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}
