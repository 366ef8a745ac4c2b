package revocation

import (
	"context"
	"sync"
	"time"
)

// sweepEvery is how many revocations pass between sweeps of expired entries.
const sweepEvery = 256

// Memory is a process-local registry guarded by a mutex.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	writes  int
	now     func() time.Time
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke implements Registry.
func (m *Memory) Revoke(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[jti]; ok {
		return false, nil
	}
	m.entries[jti] = expiresAt
	m.writes++
	if m.writes%sweepEvery == 0 {
		now := m.now()
		for k, exp := range m.entries {
			if !exp.IsZero() && exp.Before(now) {
				delete(m.entries, k)
			}
		}
	}
	return true, nil
}

// IsRevoked implements Registry.
func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[jti]
	return ok, nil
}

// Len returns the number of tracked revocations.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
