// Package livekit mints room access tokens for the media transport that
// carries human-to-human calls. The conversational AI path does not go
// through LiveKit; this covers escalations to a human DevRel and
// scheduled calls.
package livekit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL matches the access-token lifetime the dashboard expects.
const DefaultTTL = 6 * time.Hour

// VideoGrant is the LiveKit room permission claim.
type VideoGrant struct {
	RoomJoin bool   `json:"roomJoin"`
	Room     string `json:"room"`
}

type claims struct {
	jwt.RegisteredClaims
	Video VideoGrant `json:"video"`
}

// TokenMinter signs LiveKit room access tokens with the API secret.
type TokenMinter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenMinter creates a minter. ttl <= 0 selects DefaultTTL.
func NewTokenMinter(apiKey, apiSecret string, ttl time.Duration) (*TokenMinter, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("LiveKit API key and secret are required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenMinter{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl, now: time.Now}, nil
}

// Mint returns a signed JWT granting identity the right to join room.
func (m *TokenMinter) Mint(room, identity string) (string, error) {
	if room == "" {
		return "", fmt.Errorf("room name is required")
	}
	if identity == "" {
		return "", fmt.Errorf("participant identity is required")
	}

	now := m.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Video: VideoGrant{RoomJoin: true, Room: room},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(m.apiSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token minted by this minter and returns its room and
// identity. Used by tests and the admin token inspector.
func (m *TokenMinter) Parse(tokenString string) (room, identity string, err error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(m.apiSecret), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to parse access token: %w", err)
	}
	if !token.Valid {
		return "", "", fmt.Errorf("invalid access token")
	}
	return c.Video.Room, c.Subject, nil
}
