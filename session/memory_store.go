package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-grocery/core"
)

// MemoryStore keeps encoded sessions in process memory. It is meant for
// development and tests; data is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	logger  core.Logger
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, letting tests move past expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// WithTTL sets the default expiry.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.ttl = effectiveTTL(ttl, core.DefaultSessionTTL) }
}

// WithLogger sets the logger.
func WithLogger(logger core.Logger) MemoryOption {
	return func(m *MemoryStore) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     core.DefaultSessionTTL,
		now:     time.Now,
		logger:  &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// load returns the live entry for userID, dropping it if expired.
// Callers hold m.mu.
func (m *MemoryStore) load(userID string) (*Session, error) {
	entry, ok := m.entries[userID]
	if !ok {
		return Empty(), nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, userID)
		m.logger.Debug("Session expired", map[string]interface{}{
			"user_id":    userID,
			"expired_at": entry.expiresAt.Format(time.RFC3339),
		})
		return Empty(), nil
	}
	return decode(entry.data)
}

func (m *MemoryStore) store(userID string, s *Session, ttl time.Duration) error {
	payload, err := encode(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	m.entries[userID] = memoryEntry{data: payload, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, userID string) (*Session, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(userID)
}

func (m *MemoryStore) Save(ctx context.Context, userID string, s *Session, ttl time.Duration) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store(userID, s, effectiveTTL(ttl, m.ttl))
}

func (m *MemoryStore) Update(ctx context.Context, userID string, fn UpdateFunc) (*Session, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(userID)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := m.store(userID, s, m.ttl); err != nil {
		return nil, err
	}
	return s, nil
}

// HealthCheck always succeeds.
func (m *MemoryStore) HealthCheck(ctx context.Context) error { return nil }
