package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/patientsim/internal/model"
)

type memoryEntry struct {
	data      model.SessionData
	expiresAt time.Time
}

// MemoryStore is an in-process Store for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock replaces the store's clock; used by tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Get(_ context.Context, key string) (model.SessionData, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return model.SessionData{}, ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return model.SessionData{}, ErrNotFound
	}
	return cloneData(e.data), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, data model.SessionData, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{data: cloneData(data), expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expiresAt) {
		return ErrNotFound
	}
	e.expiresAt = m.now().Add(ttl)
	m.entries[key] = e
	return nil
}

// cloneData copies the turn slice so callers cannot mutate stored state.
func cloneData(d model.SessionData) model.SessionData {
	d.Turns = slices.Clone(d.Turns)
	return d
}
