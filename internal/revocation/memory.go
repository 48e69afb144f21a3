package revocation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process revocation store for single-instance deployments
// and tests. Expired entries are dropped lazily.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	marker    string
	expiresAt time.Time
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{entries: make(map[string]memoryEntry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Set(_ context.Context, key, marker string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("revocation: ttl must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{marker: marker, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) DeleteAll(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for k, e := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if now.Before(e.expiresAt) {
			n++
		}
		delete(m.entries, k)
	}
	return n, nil
}

func (m *Memory) Count(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n, nil
}
