// Package behavior ingests client behavior events and drives the
// asynchronous risk recalculation pipeline.
//
// Ingestion appends an immutable log entry and enqueues the user for
// recalculation. The recalculation worker rescores the user from raw
// history, independent of the synchronous per-request risk pass; both
// paths write the same risk fields but neither ever clears a ban.
package behavior

import (
	"context"
	"time"
)

// Entry is one append-only behavior observation.
type Entry struct {
	ID              string    `json:"id"`
	UID             string    `json:"uid"`
	RewardClicks    int       `json:"rewardClicks"`
	SessionDuration int64     `json:"sessionDuration"` // milliseconds
	DeviceHash      string    `json:"deviceHash,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store persists behavior log entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	ListByUID(ctx context.Context, uid string, limit int) ([]*Entry, error)

	// CountDistinctOwners counts distinct users other than excludeUID whose
	// entries carry the given device fingerprint. Feeds the shared-device
	// signal of the grant path.
	CountDistinctOwners(ctx context.Context, deviceHash, excludeUID string) (int, error)
}
