package behavior

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/movieboxhq/coinback/internal/account"
	"github.com/movieboxhq/coinback/internal/metrics"
	"github.com/movieboxhq/coinback/internal/risk"
	"github.com/movieboxhq/coinback/internal/traces"
)

const (
	recalcQueueSize = 256

	// historyWindow bounds how much log history one rescore reads.
	historyWindow = 500
)

// Recalculator is the async risk rescoring worker. Ingestion enqueues
// uids; the worker rescores each from raw behavior history on its own
// goroutine, decoupled from request handling. A periodic sweep retries
// users whose rescore failed or whose enqueue found the queue full.
type Recalculator struct {
	accounts account.Store
	logs     Store
	logger   *slog.Logger
	interval time.Duration

	queue chan string
	stop  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewRecalculator creates a worker with the given sweep interval.
func NewRecalculator(accounts account.Store, logs Store, logger *slog.Logger, interval time.Duration) *Recalculator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Recalculator{
		accounts: accounts,
		logs:     logs,
		logger:   logger,
		interval: interval,
		queue:    make(chan string, recalcQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}
}

// Start launches the worker goroutine.
func (r *Recalculator) Start() {
	go r.run()
}

// Stop shuts the worker down and waits for the current rescore to finish.
func (r *Recalculator) Stop() {
	close(r.stop)
	<-r.done
}

// Enqueue schedules uid for rescoring. Never blocks: with a full queue
// the uid is parked for the next sweep.
func (r *Recalculator) Enqueue(uid string) {
	select {
	case r.queue <- uid:
	default:
		r.park(uid)
	}
}

func (r *Recalculator) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case uid := <-r.queue:
			r.recalcOne(uid, "event")
		case <-ticker.C:
			for _, uid := range r.takePending() {
				r.recalcOne(uid, "sweep")
			}
		}
	}
}

func (r *Recalculator) recalcOne(uid, trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.Recalculate(ctx, uid); err != nil {
		r.logger.Warn("risk recalculation failed", "uid", uid, "error", err)
		r.park(uid)
		return
	}
	metrics.RiskRecalcsTotal.WithLabelValues(trigger).Inc()
}

// Recalculate rescores one user from their full behavior history. The
// write-back touches only the risk fields and never clears a ban.
func (r *Recalculator) Recalculate(ctx context.Context, uid string) error {
	ctx, span := traces.StartSpan(ctx, "behavior.recalculate", traces.UserID(uid))
	defer span.End()

	entries, err := r.logs.ListByUID(ctx, uid, historyWindow)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	// Entries come newest first: score the latest event against the
	// average click count of everything before it.
	latest := entries[0]
	var priorSum float64
	for _, e := range entries[1:] {
		priorSum += float64(e.RewardClicks)
	}
	var avg float64
	if len(entries) > 1 {
		avg = priorSum / float64(len(entries)-1)
	}

	sig := risk.DeriveHistorySignals(float64(latest.RewardClicks), avg, latest.SessionDuration)
	score, ban := risk.ScoreHistory(sig)

	var newlyBanned bool
	_, err = r.accounts.Update(ctx, uid, func(acc *account.UserAccount) error {
		newlyBanned = ban && !acc.Banned
		acc.Banned = acc.Banned || ban
		acc.RiskScore = score
		if acc.Banned {
			acc.RiskLevel = risk.LevelBanned
		} else {
			acc.RiskLevel = risk.LevelFor(score)
		}
		return nil
	})
	if errors.Is(err, account.ErrNotFound) {
		// Behavior logged before the account existed; nothing to score yet.
		return nil
	}
	if err != nil {
		return err
	}

	if newlyBanned {
		metrics.UsersBannedTotal.WithLabelValues("recalc").Inc()
		r.logger.Warn("user banned by risk recalculation",
			"uid", uid,
			"riskScore", score,
			"clickAnomaly", sig.ClickAnomaly,
			"shortSession", sig.ShortSession,
			"longSession", sig.LongSession,
		)
	}
	return nil
}

func (r *Recalculator) park(uid string) {
	r.mu.Lock()
	r.pending[uid] = struct{}{}
	r.mu.Unlock()
}

func (r *Recalculator) takePending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	uids := make([]string, 0, len(r.pending))
	for uid := range r.pending {
		uids = append(uids, uid)
	}
	r.pending = make(map[string]struct{})
	return uids
}
