// Package redeem handles coin withdrawal requests.
//
// A redemption debits the user's balance atomically and files a pending
// request for operator review. The debit and the request are linked by a
// compensating refund: if the request cannot be persisted after the debit
// committed, the coins are returned.
package redeem

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotFound = errors.New("redeem request not found")
)

// Request statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Request is one coin withdrawal awaiting review.
type Request struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Amount    int       `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidStatus reports whether s is a known request status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Store persists redemption requests.
type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, limit int) ([]*Request, error)
	ListByUID(ctx context.Context, uid string, limit int) ([]*Request, error)

	// SetStatus transitions a request and returns the updated copy.
	SetStatus(ctx context.Context, id, status string) (*Request, error)
}
