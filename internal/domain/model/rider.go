// Package model contains domain models passed between layers.
package model

import "math"

// RiderLocation is a rider's identity and last-known position as tracked by
// a seller's live map session.
type RiderLocation struct {
	ID   string  `json:"id"`   // stable rider identity
	Name string  `json:"name"` // display name
	Lat  float64 `json:"lat"`  // degrees, [-90, 90]
	Lng  float64 `json:"lng"`  // degrees, [-180, 180]
}

// Valid reports whether the position is a finite coordinate pair inside the
// geographic range.
func (r RiderLocation) Valid() bool {
	if math.IsNaN(r.Lat) || math.IsInf(r.Lat, 0) || math.IsNaN(r.Lng) || math.IsInf(r.Lng, 0) {
		return false
	}
	return r.Lat >= -90 && r.Lat <= 90 && r.Lng >= -180 && r.Lng <= 180
}
