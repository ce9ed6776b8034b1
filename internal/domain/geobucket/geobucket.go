// Package geobucket maps coordinates to fixed-precision geohash buckets.
// The bucket string is used as-is in presence channel names, so the encoding
// is a wire contract: same inputs must always produce the same key.
package geobucket

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Precision is the bucket size used for channel naming. Five characters is a
// roughly city-sized cell (~5 km), coarse enough that a seller and the riders
// around them land on one channel without pulling in a whole region.
const Precision = 5

// base32 is the geohash character set; a, i, l and o are excluded.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// ErrOutOfRange reports a coordinate outside the valid geographic range.
// Callers treat this as a programming error, not a recoverable condition.
var ErrOutOfRange = errors.New("coordinate out of range")

// Encode returns the geohash bucket for a coordinate pair at Precision
// characters. It is a pure function: no side effects, no I/O.
func Encode(lat, lng float64) (string, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return "", fmt.Errorf("%w: lat=%v lng=%v", ErrOutOfRange, lat, lng)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", fmt.Errorf("%w: lat=%v lng=%v", ErrOutOfRange, lat, lng)
	}

	minLat, maxLat := -90.0, 90.0
	minLng, maxLng := -180.0, 180.0

	var hash strings.Builder
	evenBit := true // longitude on even bits, latitude on odd
	bit := 0
	ch := 0

	for hash.Len() < Precision {
		if evenBit {
			mid := (minLng + maxLng) / 2
			if lng >= mid {
				ch |= 1 << (4 - bit)
				minLng = mid
			} else {
				maxLng = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		evenBit = !evenBit
		bit++
		if bit == 5 {
			hash.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}

	return hash.String(), nil
}
