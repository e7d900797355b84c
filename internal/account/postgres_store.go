package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL.
//
// Update opens a serializable transaction, locks the user row with
// SELECT ... FOR UPDATE, runs the closure, and writes the result back.
// Serialization conflicts (SQLSTATE 40001/40P01) re-run the closure
// against fresh state, up to maxUpdateRetries times.
type PostgresStore struct {
	db *sql.DB
}

const maxUpdateRetries = 3

// NewPostgresStore creates a PostgreSQL-backed account store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `uid, total_coins, daily_ad_count, banned, risk_score, risk_level,
	suspicious_count, last_reward_millis, COALESCE(last_reward_intent, ''),
	COALESCE(last_ip, ''), COALESCE(device_hash, ''), created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*UserAccount, error) {
	acc := &UserAccount{}
	err := row.Scan(
		&acc.UID, &acc.TotalCoins, &acc.DailyAdCount, &acc.Banned,
		&acc.RiskScore, &acc.RiskLevel, &acc.SuspiciousCount,
		&acc.LastRewardMillis, &acc.LastRewardIntent, &acc.LastIP, &acc.DeviceHash,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (p *PostgresStore) Get(ctx context.Context, uid string) (*UserAccount, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE uid = $1`, uid)
	return scanAccount(row)
}

func (p *PostgresStore) Create(ctx context.Context, acc *UserAccount) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (uid, total_coins, daily_ad_count, banned, risk_score, risk_level,
			suspicious_count, last_reward_millis, last_reward_intent, last_ip, device_hash,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NOW(), NOW())
	`, acc.UID, acc.TotalCoins, acc.DailyAdCount, acc.Banned, acc.RiskScore, acc.RiskLevel,
		acc.SuspiciousCount, acc.LastRewardMillis, acc.LastRewardIntent, acc.LastIP, acc.DeviceHash)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, uid string, fn func(*UserAccount) error) (*UserAccount, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		acc, err := p.tryUpdate(ctx, uid, fn)
		if err == nil {
			return acc, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("account update conflicted %d times: %w", maxUpdateRetries, lastErr)
}

func (p *PostgresStore) tryUpdate(ctx context.Context, uid string, fn func(*UserAccount) error) (*UserAccount, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE uid = $1 FOR UPDATE`, uid)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, err
	}

	if err := fn(acc); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET
			total_coins        = $2,
			daily_ad_count     = $3,
			banned             = $4,
			risk_score         = $5,
			risk_level         = $6,
			suspicious_count   = $7,
			last_reward_millis = $8,
			last_reward_intent = NULLIF($9, ''),
			last_ip            = NULLIF($10, ''),
			device_hash        = NULLIF($11, ''),
			updated_at         = NOW()
		WHERE uid = $1
	`, acc.UID, acc.TotalCoins, acc.DailyAdCount, acc.Banned, acc.RiskScore, acc.RiskLevel,
		acc.SuspiciousCount, acc.LastRewardMillis, acc.LastRewardIntent, acc.LastIP, acc.DeviceHash)
	if err != nil {
		return nil, fmt.Errorf("write account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return acc, nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func (p *PostgresStore) CountByLastIP(ctx context.Context, ip, excludeUID string) (int, error) {
	if ip == "" {
		return 0, nil
	}
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE last_ip = $1 AND uid <> $2
	`, ip, excludeUID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count accounts by ip: %w", err)
	}
	return count, nil
}

func (p *PostgresStore) ResetDailyCounts(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET daily_ad_count = 0, updated_at = NOW() WHERE daily_ad_count <> 0
	`)
	if err != nil {
		return 0, fmt.Errorf("reset daily counts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

var _ Store = (*PostgresStore)(nil)
