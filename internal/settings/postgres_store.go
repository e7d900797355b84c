package settings

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store backed by the app_settings table.
// The table holds a single row keyed by id=1.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed settings store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Load(ctx context.Context) (Settings, error) {
	var s Settings
	err := p.db.QueryRowContext(ctx, `
		SELECT rewards_enabled, coin_per_reward, daily_limit
		FROM app_settings WHERE id = 1
	`).Scan(&s.RewardsEnabled, &s.CoinPerReward, &s.DailyLimit)
	if err == sql.ErrNoRows {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Save(ctx context.Context, s Settings) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, rewards_enabled, coin_per_reward, daily_limit, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			rewards_enabled = $1,
			coin_per_reward = $2,
			daily_limit     = $3,
			updated_at      = NOW()
	`, s.RewardsEnabled, s.CoinPerReward, s.DailyLimit)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
