package behavior

import (
	"context"
	"time"

	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/idgen"
	"github.com/movieboxhq/coinback/internal/logging"
	"github.com/movieboxhq/coinback/internal/validation"
)

// maxSessionDurationMillis rejects obviously corrupt client clocks
// (30 days). Implausible-but-possible durations are the recalc worker's
// business, not ingestion's.
const maxSessionDurationMillis = 30 * 24 * 60 * 60 * 1000

// Tracker ingests behavior events and feeds the recalculation queue.
type Tracker struct {
	store  Store
	recalc *Recalculator
}

// NewTracker creates the ingestion service. recalc may be nil (tests).
func NewTracker(store Store, recalc *Recalculator) *Tracker {
	return &Tracker{store: store, recalc: recalc}
}

// TrackInput is one client-reported behavior event.
type TrackInput struct {
	UID             string
	RewardClicks    int
	SessionDuration int64
	DeviceHash      string
}

// Track appends a behavior entry and enqueues the user for rescoring.
func (t *Tracker) Track(ctx context.Context, in TrackInput) (*Entry, error) {
	if in.UID == "" {
		return nil, faults.New(faults.Unauthenticated, "caller identity required")
	}
	if in.RewardClicks < 0 {
		return nil, faults.New(faults.InvalidArgument, "rewardClicks must not be negative")
	}
	if in.SessionDuration < 0 || in.SessionDuration > maxSessionDurationMillis {
		return nil, faults.New(faults.InvalidArgument, "sessionDuration out of range")
	}

	e := &Entry{
		ID:              idgen.WithPrefix("bhv_"),
		UID:             in.UID,
		RewardClicks:    in.RewardClicks,
		SessionDuration: in.SessionDuration,
		DeviceHash:      validation.SanitizeDeviceHash(in.DeviceHash),
		CreatedAt:       time.Now(),
	}
	if err := t.store.Append(ctx, e); err != nil {
		return nil, err
	}

	if t.recalc != nil {
		t.recalc.Enqueue(in.UID)
	}
	logging.L(ctx).Debug("behavior event tracked", "uid", in.UID, "entryId", e.ID)
	return e, nil
}
