package redeem

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used without DATABASE_URL.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

// NewMemoryStore creates an empty in-memory redeem store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

func (m *MemoryStore) Create(_ context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(limit, func(*Request) bool { return true }), nil
}

func (m *MemoryStore) ListByUID(_ context.Context, uid string, limit int) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(limit, func(r *Request) bool { return r.UID == uid }), nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id, status string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

// collect returns matching requests newest first. Caller holds the lock.
func (m *MemoryStore) collect(limit int, match func(*Request) bool) []*Request {
	var result []*Request
	for _, r := range m.requests {
		if match(r) {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

var _ Store = (*MemoryStore)(nil)
