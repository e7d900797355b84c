package redeem

import (
	"context"
	"errors"
	"time"

	"github.com/movieboxhq/coinback/internal/account"
	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/idgen"
	"github.com/movieboxhq/coinback/internal/logging"
	"github.com/movieboxhq/coinback/internal/metrics"
	"github.com/movieboxhq/coinback/internal/traces"
)

// Emitter publishes redemption filings to the realtime stream.
type Emitter interface {
	EmitRedeem(data map[string]any)
}

// Service orchestrates coin redemptions.
type Service struct {
	accounts account.Store
	requests Store
	events   Emitter
}

// NewService creates the redemption orchestrator. events may be nil.
func NewService(accounts account.Store, requests Store, events Emitter) *Service {
	return &Service{accounts: accounts, requests: requests, events: events}
}

// Redeem debits amount coins from uid and files a pending withdrawal.
func (s *Service) Redeem(ctx context.Context, uid string, amount int) (*Request, error) {
	ctx, span := traces.StartSpan(ctx, "redeem.create", traces.UserID(uid), traces.Amount(float64(amount)))
	defer span.End()

	if uid == "" {
		return nil, faults.New(faults.Unauthenticated, "caller identity required")
	}
	if amount <= 0 {
		return nil, faults.New(faults.InvalidArgument, "amount must be a positive integer")
	}

	_, err := s.accounts.Update(ctx, uid, func(acc *account.UserAccount) error {
		if acc.Banned {
			return faults.New(faults.PermissionDenied, "account is banned")
		}
		if acc.TotalCoins < float64(amount) {
			return faults.New(faults.FailedPrecondition, "insufficient coin balance")
		}
		acc.TotalCoins -= float64(amount)
		return nil
	})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, faults.New(faults.NotFound, "no account for caller")
		}
		if faults.KindOf(err) != faults.Internal {
			metrics.RedeemsTotal.WithLabelValues("denied").Inc()
		}
		return nil, err
	}

	now := time.Now()
	req := &Request{
		ID:        idgen.WithPrefix("rdm_"),
		UID:       uid,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		s.refund(ctx, uid, amount)
		metrics.RedeemsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.RedeemsTotal.WithLabelValues("created").Inc()
	if s.events != nil {
		s.events.EmitRedeem(map[string]any{
			"uid":       uid,
			"amount":    amount,
			"requestId": req.ID,
			"status":    req.Status,
		})
	}
	logging.L(ctx).Info("redeem requested", "uid", uid, "amount", amount, "requestId", req.ID)
	return req, nil
}

// refund returns coins debited for a request that could not be persisted.
func (s *Service) refund(ctx context.Context, uid string, amount int) {
	_, err := s.accounts.Update(ctx, uid, func(acc *account.UserAccount) error {
		acc.TotalCoins += float64(amount)
		return nil
	})
	if err != nil {
		logging.L(ctx).Error("redeem refund failed", "uid", uid, "amount", amount, "error", err)
	}
}

// History lists the caller's redemption requests, newest first.
func (s *Service) History(ctx context.Context, uid string, limit int) ([]*Request, error) {
	if uid == "" {
		return nil, faults.New(faults.Unauthenticated, "caller identity required")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.requests.ListByUID(ctx, uid, limit)
}

// ListAll lists every redemption request for operator review.
func (s *Service) ListAll(ctx context.Context, limit int) ([]*Request, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.requests.List(ctx, limit)
}

// SetStatus transitions a request between review states. Rejecting a
// pending request returns the debited coins to the user.
func (s *Service) SetStatus(ctx context.Context, id, status string) (*Request, error) {
	if !ValidStatus(status) {
		return nil, faults.New(faults.InvalidArgument, "unknown status")
	}

	current, err := s.requests.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, faults.New(faults.NotFound, "redeem request not found")
		}
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, faults.New(faults.FailedPrecondition, "request already resolved")
	}
	if status == StatusPending {
		return current, nil
	}

	updated, err := s.requests.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if status == StatusRejected {
		s.refund(ctx, updated.UID, updated.Amount)
	}

	logging.L(ctx).Info("redeem request resolved", "requestId", id, "status", status)
	return updated, nil
}
