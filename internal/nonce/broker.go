// Package nonce issues and consumes single-use check-in tokens scoped to one user and
// one session.
package nonce

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"checkin/internal/clock"
)

// DefaultMaxTTL bounds how long an unconsumed nonce lives.
const DefaultMaxTTL = 2 * time.Minute

const tokenBytes = 32

// ErrOutsideWindow is returned by Issue when the session has not started or already ended.
var ErrOutsideWindow = errors.New("nonce: session is outside its check-in window")

// Store holds at most one live value per key. Take must read and delete in one atomic
// step so that two concurrent callers never both see the same value.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Take(ctx context.Context, key string) (value string, found bool, err error)
}

// Broker issues and consumes nonces.
type Broker struct {
	store  Store
	clock  clock.Clock
	maxTTL time.Duration
	random io.Reader
}

// NewBroker creates a broker. maxTTL <= 0 selects DefaultMaxTTL.
func NewBroker(store Store, clk clock.Clock, maxTTL time.Duration) *Broker {
	if maxTTL <= 0 {
		maxTTL = DefaultMaxTTL
	}
	return &Broker{store: store, clock: clk, maxTTL: maxTTL, random: rand.Reader}
}

// Key is the store key for a (user, session) pair.
func Key(userID, sessionID string) string {
	return "checkin:nonce:" + userID + ":" + sessionID
}

// Issue generates a fresh token for (userID, sessionID), replacing any previous one.
// The token never outlives the session end.
func (b *Broker) Issue(ctx context.Context, userID, sessionID string, start, end time.Time) (string, error) {
	now := b.clock.Now()
	if now.Before(start) {
		return "", ErrOutsideWindow
	}
	ttl := end.Sub(now)
	if ttl <= 0 {
		return "", ErrOutsideWindow
	}
	if ttl > b.maxTTL {
		ttl = b.maxTTL
	}

	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(b.random, buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	if err := b.store.Put(ctx, Key(userID, sessionID), token, ttl); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return token, nil
}

// Consume deletes the live token for (userID, sessionID) and reports whether it equals
// presented. The key is gone afterwards whatever the outcome.
func (b *Broker) Consume(ctx context.Context, userID, sessionID, presented string) (bool, error) {
	stored, found, err := b.store.Take(ctx, Key(userID, sessionID))
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	if !found || presented == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1, nil
}
