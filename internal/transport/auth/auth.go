// Package auth issues and verifies channel subscription tokens. Private and
// presence channels require a signed token on subscribe so that only the
// store's own dashboard can listen for its assignment events.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 4 * time.Hour

// Claims carries the channel a token authorizes.
type Claims struct {
	Channel string `json:"channel"`
	jwt.RegisteredClaims
}

// Signer signs channel tokens with an HS256 secret shared with the push
// gateway. The secret is injected, never read from process globals.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner creates a signer. A zero ttl falls back to the default.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// ChannelToken returns a signed token authorizing a subscription to channel.
func (s *Signer) ChannelToken(channel string) (string, error) {
	claims := Claims{
		Channel: channel,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a token and returns its claims.
func (s *Signer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid channel token")
	}
	return claims, nil
}
