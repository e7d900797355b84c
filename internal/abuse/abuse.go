// Package abuse is the append-only abuse event sink.
//
// Every fraud decision the grant path takes is recorded here after commit.
// Entries are never mutated or deleted; fraud-ops reads them through the
// admin API and optionally receives a signed webhook per entry.
package abuse

import (
	"context"
	"sync"
	"time"

	"github.com/movieboxhq/coinback/internal/idgen"
	"github.com/movieboxhq/coinback/internal/logging"
	"github.com/movieboxhq/coinback/internal/metrics"
)

// Entry is one abuse event.
type Entry struct {
	ID        string     `json:"id"`
	UID       string     `json:"uid"`
	Reason    string     `json:"reason"`
	RiskScore *float64   `json:"riskScore,omitempty"`
	RiskLevel string     `json:"riskLevel,omitempty"`
	IP        string     `json:"ip,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Store persists abuse entries, append-only.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]*Entry, error)
	ListByUID(ctx context.Context, uid string, limit int) ([]*Entry, error)
}

// Notifier pushes an entry to an external alerting channel.
type Notifier interface {
	Notify(ctx context.Context, e *Entry)
}

// Emitter publishes recorded entries to the realtime admin stream.
type Emitter interface {
	EmitAbuse(data map[string]any)
}

// Sink records abuse events: store append, metrics, optional notification.
type Sink struct {
	store    Store
	notifier Notifier
	events   Emitter
}

// NewSink creates an abuse sink. notifier and events may be nil.
func NewSink(store Store, notifier Notifier, events Emitter) *Sink {
	return &Sink{store: store, notifier: notifier, events: events}
}

// Record appends one entry. Failures are logged, not surfaced: the grant
// decision has already committed and must not be unwound for audit-trail
// trouble. Safe to retry, entries get fresh IDs.
func (s *Sink) Record(ctx context.Context, e *Entry) {
	if e.ID == "" {
		e.ID = idgen.WithPrefix("abu_")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	if err := s.store.Append(ctx, e); err != nil {
		logging.L(ctx).Error("abuse log append failed", "uid", e.UID, "reason", e.Reason, "error", err)
		return
	}
	metrics.AbuseEventsTotal.WithLabelValues(e.Reason).Inc()

	if s.notifier != nil {
		s.notifier.Notify(ctx, e)
	}
	if s.events != nil {
		data := map[string]any{
			"uid":       e.UID,
			"reason":    e.Reason,
			"riskLevel": e.RiskLevel,
		}
		if e.RiskScore != nil {
			data["riskScore"] = *e.RiskScore
		}
		s.events.EmitAbuse(data)
	}

	logging.L(ctx).Warn("abuse event recorded", "uid", e.UID, "reason", e.Reason, "riskLevel", e.RiskLevel)
}

// Store returns the underlying store for read paths.
func (s *Sink) Store() Store {
	return s.store
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore creates a new in-memory abuse store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tail(len(m.entries), limit, func(e *Entry) bool { return true })
}

func (m *MemoryStore) ListByUID(ctx context.Context, uid string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tail(len(m.entries), limit, func(e *Entry) bool { return e.UID == uid })
}

// tail returns up to limit matching entries, newest first. Caller holds lock.
func (m *MemoryStore) tail(n, limit int, match func(*Entry) bool) ([]*Entry, error) {
	var result []*Entry
	for i := n - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if match(m.entries[i]) {
			cp := *m.entries[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
