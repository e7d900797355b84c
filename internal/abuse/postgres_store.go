package abuse

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store backed by the abuse_logs table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed abuse store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, e *Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO abuse_logs (id, uid, reason, risk_score, risk_level, ip, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`, e.ID, e.UID, e.Reason, e.RiskScore, e.RiskLevel, e.IP, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append abuse log: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	return p.query(ctx, `
		SELECT id, uid, reason, risk_score, COALESCE(risk_level, ''), COALESCE(ip, ''), created_at
		FROM abuse_logs ORDER BY created_at DESC LIMIT $1
	`, limit)
}

func (p *PostgresStore) ListByUID(ctx context.Context, uid string, limit int) ([]*Entry, error) {
	return p.query(ctx, `
		SELECT id, uid, reason, risk_score, COALESCE(risk_level, ''), COALESCE(ip, ''), created_at
		FROM abuse_logs WHERE uid = $2 ORDER BY created_at DESC LIMIT $1
	`, limit, uid)
}

func (p *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list abuse logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.UID, &e.Reason, &e.RiskScore, &e.RiskLevel, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
