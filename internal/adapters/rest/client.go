// Package rest calls the storefront backend on behalf of a tracking session:
// rider detail lookups when an assignment arrives for an unknown rider, and
// the mark-ready-for-pickup call that kicks off rider matching.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/okian/ridetrack/internal/domain/model"
	"github.com/okian/ridetrack/pkg/metrics"
)

const defaultTimeout = 10 * time.Second

// Sentinel error kinds for this package.
var (
	ErrRiderFetch = errors.New("rider detail fetch failed")
	ErrMarkReady  = errors.New("mark ready failed")
)

// Client talks to the backend API.
type Client struct {
	base string
	http *http.Client
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient creates a client for the given base URL, e.g. "https://api.shop.example".
func NewClient(base string, opts ...Option) *Client {
	c := &Client{
		base: base,
		http: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// riderDetail mirrors GET /api/rider/{riderId}. Note the long-form
// latitude/longitude field names on this endpoint.
type riderDetail struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// readyRequest mirrors POST /api/logistics/order/{itemId}/ready.
type readyRequest struct {
	SellerLat float64 `json:"sellerLat"`
	SellerLng float64 `json:"sellerLng"`
}

// apiError is the error body the backend returns on failure.
type apiError struct {
	Error string `json:"error"`
}

// Rider fetches the details used to hydrate an assigned rider that is not in
// the presence map yet. A failure means the assignment must not be applied.
func (c *Client) Rider(ctx context.Context, riderID string) (model.RiderLocation, error) {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDetailFetch(time.Since(start).Seconds(), err)
	}()

	u := fmt.Sprintf("%s/api/rider/%s", c.base, url.PathEscape(riderID))
	req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if rerr != nil {
		err = fmt.Errorf("%w: %v", ErrRiderFetch, rerr)
		return model.RiderLocation{}, err
	}

	resp, derr := c.http.Do(req)
	if derr != nil {
		err = fmt.Errorf("%w: %v", ErrRiderFetch, derr)
		return model.RiderLocation{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%w: rider %s: status %d", ErrRiderFetch, riderID, resp.StatusCode)
		return model.RiderLocation{}, err
	}

	var d riderDetail
	if jerr := json.NewDecoder(resp.Body).Decode(&d); jerr != nil {
		err = fmt.Errorf("%w: decode: %v", ErrRiderFetch, jerr)
		return model.RiderLocation{}, err
	}

	rl := model.RiderLocation{ID: d.ID, Name: d.Name, Lat: d.Latitude, Lng: d.Longitude}
	if rl.ID != riderID || !rl.Valid() {
		// A record for the wrong rider must never be pinned as the
		// assignment.
		err = fmt.Errorf("%w: rider %s: incomplete or mismatched record", ErrRiderFetch, riderID)
		return model.RiderLocation{}, err
	}
	return rl, nil
}

// MarkReady tells the backend the order item is ready for pickup, passing
// the seller's resolved coordinates so rider matching can run. The caller
// guarantees the coordinates are set; this call is never made without them.
func (c *Client) MarkReady(ctx context.Context, itemID string, sellerLat, sellerLng float64) error {
	body, err := json.Marshal(readyRequest{SellerLat: sellerLat, SellerLng: sellerLng})
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrMarkReady, err)
	}

	u := fmt.Sprintf("%s/api/logistics/order/%s/ready", c.base, url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarkReady, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarkReady, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if derr := json.NewDecoder(resp.Body).Decode(&ae); derr == nil && ae.Error != "" {
			return fmt.Errorf("%w: %s", ErrMarkReady, ae.Error)
		}
		return fmt.Errorf("%w: status %d", ErrMarkReady, resp.StatusCode)
	}
	return nil
}
