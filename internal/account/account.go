// Package account is the user coin ledger.
//
// A UserAccount is the single document all invariants are scoped to:
// balance, daily counter, risk fields, and last-seen fingerprint. Every
// mutation goes through Store.Update, which runs a read-modify-write
// closure atomically per user, so two concurrent requests can never
// both apply to the same stale state.
package account

import (
	"context"
	"errors"
	"time"

	"github.com/movieboxhq/coinback/internal/risk"
)

// Errors
var (
	ErrNotFound = errors.New("account not found")
	ErrExists   = errors.New("account already exists")
)

// UserAccount holds the per-user ledger and risk state.
type UserAccount struct {
	UID              string     `json:"uid"`
	TotalCoins       float64    `json:"totalCoins"`
	DailyAdCount     int        `json:"dailyAdCount"`
	Banned           bool       `json:"banned"`
	RiskScore        float64    `json:"riskScore"`
	RiskLevel        risk.Level `json:"riskLevel"`
	SuspiciousCount  int        `json:"suspiciousCount"`
	LastRewardMillis int64      `json:"lastRewardMillis"`
	LastRewardIntent string     `json:"lastRewardIntent,omitempty"`
	LastIP           string     `json:"lastIP,omitempty"`
	DeviceHash       string     `json:"deviceHash,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// NewAccount returns a fresh account with safe defaults.
func NewAccount(uid string) *UserAccount {
	now := time.Now()
	return &UserAccount{
		UID:       uid,
		RiskLevel: risk.LevelSafe,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store persists user accounts.
//
// Update runs fn against the current account state and persists the result
// atomically. The closure must be safe to re-execute: the postgres store
// retries it on serialization conflicts. Returning an error from fn aborts
// the update with no state change.
type Store interface {
	Get(ctx context.Context, uid string) (*UserAccount, error)
	Create(ctx context.Context, acc *UserAccount) error
	Update(ctx context.Context, uid string, fn func(*UserAccount) error) (*UserAccount, error)

	// CountByLastIP counts accounts other than excludeUID whose last
	// recorded IP equals ip. Read outside transactions; staleness under
	// concurrent registration is accepted.
	CountByLastIP(ctx context.Context, ip, excludeUID string) (int, error)

	// ResetDailyCounts zeroes dailyAdCount for every account and returns
	// the number touched. Invoked by the daily batch.
	ResetDailyCounts(ctx context.Context) (int64, error)
}
