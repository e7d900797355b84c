package behavior

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store backed by the behavior_logs table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed behavior store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, e *Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO behavior_logs (id, uid, reward_clicks, session_duration, device_hash, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, e.ID, e.UID, e.RewardClicks, e.SessionDuration, e.DeviceHash, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append behavior log: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByUID(ctx context.Context, uid string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, uid, reward_clicks, session_duration, COALESCE(device_hash, ''), created_at
		FROM behavior_logs WHERE uid = $1 ORDER BY created_at DESC LIMIT $2
	`, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("list behavior logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.UID, &e.RewardClicks, &e.SessionDuration, &e.DeviceHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CountDistinctOwners(ctx context.Context, deviceHash, excludeUID string) (int, error) {
	if deviceHash == "" {
		return 0, nil
	}
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT uid) FROM behavior_logs
		WHERE device_hash = $1 AND uid <> $2
	`, deviceHash, excludeUID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count device owners: %w", err)
	}
	return count, nil
}

var _ Store = (*PostgresStore)(nil)
