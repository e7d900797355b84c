// Package settings provides the reward configuration consumed by the
// grant orchestrator.
//
// The configuration is loaded per request and passed around as a value,
// never read from process-global state, so an admin update takes effect
// on the next request without coordination.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Supported range for DailyLimit.
const (
	MinDailyLimit = 10
	MaxDailyLimit = 15
)

// Errors
var (
	ErrNotFound = errors.New("settings not found")
)

// Settings is the reward configuration document.
type Settings struct {
	RewardsEnabled bool    `json:"rewardsEnabled"`
	CoinPerReward  float64 `json:"coinPerReward"`
	DailyLimit     int     `json:"dailyLimit"`
}

// Default returns the configuration a fresh deployment starts with.
func Default() Settings {
	return Settings{
		RewardsEnabled: true,
		CoinPerReward:  1,
		DailyLimit:     10,
	}
}

// Validate checks that the configuration permits granting rewards.
func (s Settings) Validate() error {
	if !s.RewardsEnabled {
		return fmt.Errorf("rewards are disabled")
	}
	return s.ValidateBounds()
}

// ValidateBounds checks the numeric fields only. Saving a disabled
// configuration is legitimate; granting against one is not.
func (s Settings) ValidateBounds() error {
	if math.IsNaN(s.CoinPerReward) || math.IsInf(s.CoinPerReward, 0) || s.CoinPerReward <= 0 {
		return fmt.Errorf("coinPerReward must be a finite positive number")
	}
	if s.DailyLimit < MinDailyLimit || s.DailyLimit > MaxDailyLimit {
		return fmt.Errorf("dailyLimit must be between %d and %d", MinDailyLimit, MaxDailyLimit)
	}
	return nil
}

// Store persists the settings singleton.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}
