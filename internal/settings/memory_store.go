package settings

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu  sync.RWMutex
	cur Settings
	set bool
}

// NewMemoryStore creates a store seeded with the default configuration.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cur: Default(), set: true}
}

// NewEmptyMemoryStore creates a store with no configuration row, for
// exercising the missing-config path in tests.
func NewEmptyMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return Settings{}, ErrNotFound
	}
	return m.cur, nil
}

func (m *MemoryStore) Save(ctx context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = s
	m.set = true
	return nil
}
