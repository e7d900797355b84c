package account

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo mode and
// tests. Per-user atomicity comes from a per-uid mutex held across the
// whole read-modify-write, so Update closures never interleave for the
// same user.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*UserAccount
	locks    sync.Map // map[string]*sync.Mutex, one per uid
}

// NewMemoryStore creates a new in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*UserAccount),
	}
}

func (m *MemoryStore) userLock(uid string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(uid, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (m *MemoryStore) Get(ctx context.Context, uid string) (*UserAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (m *MemoryStore) Create(ctx context.Context, acc *UserAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[acc.UID]; ok {
		return ErrExists
	}
	cp := *acc
	m.accounts[acc.UID] = &cp
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, uid string, fn func(*UserAccount) error) (*UserAccount, error) {
	lock := m.userLock(uid)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	acc, ok := m.accounts[uid]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	work := *acc
	if err := fn(&work); err != nil {
		return nil, err
	}
	work.UpdatedAt = time.Now()

	m.mu.Lock()
	m.accounts[uid] = &work
	m.mu.Unlock()

	cp := work
	return &cp, nil
}

func (m *MemoryStore) CountByLastIP(ctx context.Context, ip, excludeUID string) (int, error) {
	if ip == "" {
		return 0, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for uid, acc := range m.accounts {
		if uid != excludeUID && acc.LastIP == ip {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ResetDailyCounts(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, acc := range m.accounts {
		if acc.DailyAdCount != 0 {
			acc.DailyAdCount = 0
			acc.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
