package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const tokenByteLength = 32

var ErrSessionNotFound = errors.New("session_not_found")

// Session is an authenticated admin sign in.
type Session struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session is no longer valid at now.
func (session Session) Expired(now time.Time) bool {
	return now.After(session.ExpiresAt)
}

// Store keeps admin sessions keyed by opaque token.
type Store interface {
	Save(ctx context.Context, token string, session Session, ttl time.Duration) error
	Load(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}

// NewToken returns 32 random bytes, hex encoded.
func NewToken() (string, error) {
	buffer := make([]byte, tokenByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}
