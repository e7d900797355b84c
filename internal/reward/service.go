// Package reward implements the reward grant orchestrator.
//
// A grant runs in three phases: validation and correlation reads outside
// the transaction, one atomic read-modify-write of the user account, and
// post-commit audit effects (abuse log, metrics, realtime events). The
// ledger and risk fields always change together or not at all.
package reward

import (
	"context"
	"errors"
	"time"

	"github.com/movieboxhq/coinback/internal/abuse"
	"github.com/movieboxhq/coinback/internal/account"
	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/logging"
	"github.com/movieboxhq/coinback/internal/metrics"
	"github.com/movieboxhq/coinback/internal/risk"
	"github.com/movieboxhq/coinback/internal/settings"
	"github.com/movieboxhq/coinback/internal/traces"
)

// DeviceCounter counts distinct other users seen with a device fingerprint.
type DeviceCounter interface {
	CountDistinctOwners(ctx context.Context, deviceHash, excludeUID string) (int, error)
}

// EventEmitter publishes grant outcomes to the realtime stream.
type EventEmitter interface {
	EmitGrant(data map[string]any)
}

// GrantRequest is one reward claim, already authenticated and sanitized.
type GrantRequest struct {
	UID        string
	DeviceHash string // optional client fingerprint
	IP         string // effective client IP, may be empty
	Intent     string // raw reward intent from the client
}

// GrantResult reports a successful grant.
type GrantResult struct {
	Coins     float64    `json:"coins"`
	Total     float64    `json:"totalCoins"`
	RiskLevel risk.Level `json:"riskLevel"`
}

// Service orchestrates reward grants.
type Service struct {
	accounts account.Store
	settings settings.Store
	devices  DeviceCounter
	sink     *abuse.Sink
	events   EventEmitter
	now      func() time.Time
}

// NewService creates a grant orchestrator. events may be nil.
func NewService(accounts account.Store, cfg settings.Store, devices DeviceCounter, sink *abuse.Sink, events EventEmitter) *Service {
	return &Service{
		accounts: accounts,
		settings: cfg,
		devices:  devices,
		sink:     sink,
		events:   events,
		now:      time.Now,
	}
}

// DeniedError is a grant denial with the risk level that caused it, so
// handlers can surface the level to the client.
type DeniedError struct {
	Fault     *faults.Fault
	RiskLevel risk.Level
}

func (e *DeniedError) Error() string { return e.Fault.Error() }
func (e *DeniedError) Unwrap() error { return e.Fault }

func denied(kind faults.Kind, message string, level risk.Level) error {
	return &DeniedError{Fault: faults.New(kind, message), RiskLevel: level}
}

// grant outcomes decided inside the transaction, acted on after commit.
type outcome int

const (
	outcomeAllow outcome = iota
	outcomeBan
	outcomeHighRisk
	outcomeTooFast
)

// Grant executes one reward claim for the authenticated user.
func (s *Service) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	ctx, span := traces.StartSpan(ctx, "reward.grant", traces.UserID(req.UID))
	defer span.End()

	done := observeOp("grant")
	defer done()

	if req.UID == "" {
		return nil, faults.New(faults.Unauthenticated, "caller identity required")
	}

	intent, ok := NormalizeIntent(req.Intent)
	if !ok {
		return nil, faults.New(faults.InvalidArgument, "rewardIntent does not match a permitted action")
	}

	cfg, err := s.settings.Load(ctx)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return nil, faults.New(faults.FailedPrecondition, "reward configuration missing")
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, faults.New(faults.FailedPrecondition, err.Error())
	}

	// Correlation reads happen before the transaction. They may be stale
	// under concurrent traffic; that is an accepted approximation.
	ipCount := 0
	if req.IP != "" {
		if ipCount, err = s.accounts.CountByLastIP(ctx, req.IP, req.UID); err != nil {
			return nil, err
		}
	}
	deviceOwners := 0
	if req.DeviceHash != "" {
		if deviceOwners, err = s.devices.CountDistinctOwners(ctx, req.DeviceHash, req.UID); err != nil {
			return nil, err
		}
	}

	nowMillis := s.now().UnixMilli()

	var (
		decided outcome
		sig     risk.Signals
		score   float64
		level   risk.Level
	)

	updated, err := s.accounts.Update(ctx, req.UID, func(acc *account.UserAccount) error {
		if acc.Banned {
			return faults.New(faults.PermissionDenied, "account is banned")
		}

		sig = risk.Signals{
			TooFastRequest: risk.TooFast(acc.LastRewardMillis, nowMillis),
			DeviceMismatch: risk.DeviceMismatch(acc.DeviceHash, req.DeviceHash),
			CrowdedIP:      risk.CrowdedIP(ipCount),
			SharedDevice:   req.DeviceHash != "" && risk.SharedDevice(deviceOwners),
		}
		score, level = risk.Evaluate(acc.RiskScore, sig)

		switch {
		case level == risk.LevelBanned:
			decided = outcomeBan
			acc.Banned = true
			acc.RiskScore = score
			acc.RiskLevel = risk.LevelBanned
			if sig.TooFastRequest {
				acc.SuspiciousCount++
			}
			return nil // commit the ban, abort the grant after

		case level == risk.LevelHigh:
			decided = outcomeHighRisk
			acc.RiskScore = score
			acc.RiskLevel = level
			if sig.TooFastRequest {
				acc.SuspiciousCount++
			}
			return nil

		case acc.DailyAdCount >= cfg.DailyLimit:
			// Normal usage, not fraud: abort with no mutation, even when
			// the request also arrived inside the minimum interval.
			return faults.New(faults.FailedPrecondition, "daily reward limit reached")

		case sig.TooFastRequest:
			decided = outcomeTooFast
			acc.RiskScore = score
			acc.RiskLevel = level
			acc.SuspiciousCount++
			return nil
		}

		decided = outcomeAllow
		acc.TotalCoins += cfg.CoinPerReward
		acc.DailyAdCount++
		acc.LastRewardMillis = nowMillis
		acc.LastRewardIntent = intent
		acc.RiskScore = score
		acc.RiskLevel = level
		acc.SuspiciousCount = 0
		if req.IP != "" {
			acc.LastIP = req.IP
		}
		if req.DeviceHash != "" {
			acc.DeviceHash = req.DeviceHash
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, faults.New(faults.NotFound, "no account for caller")
		}
		return nil, err
	}

	span.SetAttributes(traces.RiskScore(score), traces.RiskLevel(string(level)))

	switch decided {
	case outcomeBan:
		s.recordAbuse(ctx, req, score, risk.LevelBanned, "risk score reached ban threshold")
		metrics.RewardsDeniedTotal.WithLabelValues("banned").Inc()
		metrics.UsersBannedTotal.WithLabelValues("grant").Inc()
		s.emit(req.UID, "ban", score, risk.LevelBanned)
		return nil, denied(faults.PermissionDenied, "account banned for fraudulent activity", risk.LevelBanned)

	case outcomeHighRisk:
		s.recordAbuse(ctx, req, score, level, "high risk reward request blocked")
		metrics.RewardsDeniedTotal.WithLabelValues("high_risk").Inc()
		s.emit(req.UID, "deny", score, level)
		return nil, denied(faults.ResourceExhausted, "request blocked due to elevated risk", level)

	case outcomeTooFast:
		s.recordAbuse(ctx, req, score, level, "reward requested too fast")
		metrics.RewardsDeniedTotal.WithLabelValues("too_fast").Inc()
		s.emit(req.UID, "deny", score, level)
		return nil, denied(faults.ResourceExhausted, "reward requested too soon after the previous one", level)
	}

	metrics.RewardsGrantedTotal.WithLabelValues(string(level)).Inc()
	s.emit(req.UID, "grant", score, level)
	logging.L(ctx).Info("reward granted",
		"uid", req.UID,
		"coins", cfg.CoinPerReward,
		"riskScore", score,
		"riskLevel", level,
	)

	return &GrantResult{
		Coins:     cfg.CoinPerReward,
		Total:     updated.TotalCoins,
		RiskLevel: level,
	}, nil
}

func (s *Service) recordAbuse(ctx context.Context, req GrantRequest, score float64, level risk.Level, reason string) {
	sc := score
	s.sink.Record(ctx, &abuse.Entry{
		UID:       req.UID,
		Reason:    reason,
		RiskScore: &sc,
		RiskLevel: string(level),
		IP:        req.IP,
	})
}

func (s *Service) emit(uid, action string, score float64, level risk.Level) {
	if s.events == nil {
		return
	}
	s.events.EmitGrant(map[string]any{
		"uid":       uid,
		"action":    action,
		"riskScore": score,
		"riskLevel": string(level),
	})
}
