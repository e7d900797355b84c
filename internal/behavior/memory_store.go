package behavior

import (
	"context"
	"sync"
)

// MemoryStore is the in-memory Store used without DATABASE_URL.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore creates an empty in-memory behavior store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

// ListByUID returns the user's entries newest first.
func (m *MemoryStore) ListByUID(_ context.Context, uid string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UID != uid {
			continue
		}
		cp := *m.entries[i]
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryStore) CountDistinctOwners(_ context.Context, deviceHash, excludeUID string) (int, error) {
	if deviceHash == "" {
		return 0, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	owners := make(map[string]struct{})
	for _, e := range m.entries {
		if e.DeviceHash == deviceHash && e.UID != excludeUID {
			owners[e.UID] = struct{}{}
		}
	}
	return len(owners), nil
}

var _ Store = (*MemoryStore)(nil)
