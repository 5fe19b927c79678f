// Package session persists per-user shopping sessions.
//
// A session document is stored under "session:{user_id}" as JSON:
//
//	{"cart":[{"item_id":1,"name":"Banana","quantity":2}],"last_seen":"2024-05-01"}
//
// Every write resets the expiry, so a session lives for the configured TTL
// after its most recent change. A missing document reads as an empty cart.
//
// Read-modify-write goes through Store.Update, which never loses a
// concurrent write for the same user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itsneelabh/gomind-grocery/core"
)

var (
	// ErrEmptyUserID rejects blank user identifiers before any store access.
	ErrEmptyUserID = errors.New("user_id is required")

	// ErrCorruptSession is returned when a stored document cannot be decoded.
	// It is never treated as an empty session.
	ErrCorruptSession = errors.New("session data is corrupt")

	// ErrConflict is returned when an optimistic update kept losing to
	// concurrent writers until the retry budget ran out.
	ErrConflict = errors.New("session update conflict")
)

// CartLine is one item in a cart. There is at most one line per ItemID.
type CartLine struct {
	ItemID   int     `json:"item_id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// Session is the per-user document.
type Session struct {
	Cart     []CartLine `json:"cart"`
	LastSeen string     `json:"last_seen,omitempty"`
}

// Empty returns the canonical session for a user with no document.
func Empty() *Session {
	return &Session{Cart: []CartLine{}}
}

// UpdateFunc mutates s in place. Returning an error aborts the update and
// nothing is written.
type UpdateFunc func(s *Session) error

// Store is the session persistence contract.
type Store interface {
	// Get returns the user's session, or Empty() when none exists.
	Get(ctx context.Context, userID string) (*Session, error)

	// Save overwrites the session and resets its expiry to ttl.
	// A ttl <= 0 uses the store's default.
	Save(ctx context.Context, userID string, s *Session, ttl time.Duration) error

	// Update applies fn to the current session and persists the result
	// with the default expiry. Concurrent updates for one user are
	// serialized.
	Update(ctx context.Context, userID string, fn UpdateFunc) (*Session, error)

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// ValidateUserID rejects blank ids.
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	return nil
}

// Today formats t as the last_seen date.
func Today(t time.Time) string {
	return t.Format("2006-01-02")
}

func decode(data []byte) (*Session, error) {
	s := Empty()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if s.Cart == nil {
		s.Cart = []CartLine{}
	}
	return s, nil
}

func encode(s *Session) ([]byte, error) {
	if s == nil {
		s = Empty()
	}
	if s.Cart == nil {
		cp := *s
		cp.Cart = []CartLine{}
		s = &cp
	}
	return json.Marshal(s)
}

func effectiveTTL(ttl, fallback time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	if fallback > 0 {
		return fallback
	}
	return core.DefaultSessionTTL
}

// storeError marks infrastructure failures so callers can tell them from
// domain errors. Context errors pass through unchanged.
func storeError(op, userID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &core.FrameworkError{
		Op:   op,
		Kind: "session",
		ID:   userID,
		Err:  fmt.Errorf("%v: %w", err, core.ErrConnectionFailed),
	}
}
