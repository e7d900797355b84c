package redeem

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore implements Store backed by the redeem_requests table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed redeem store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, r *Request) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO redeem_requests (id, uid, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.UID, r.Amount, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create redeem request: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, uid, amount, status, created_at, updated_at
		FROM redeem_requests WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Request, error) {
	return p.query(ctx, `
		SELECT id, uid, amount, status, created_at, updated_at
		FROM redeem_requests ORDER BY created_at DESC LIMIT $1
	`, limit)
}

func (p *PostgresStore) ListByUID(ctx context.Context, uid string, limit int) ([]*Request, error) {
	return p.query(ctx, `
		SELECT id, uid, amount, status, created_at, updated_at
		FROM redeem_requests WHERE uid = $2 ORDER BY created_at DESC LIMIT $1
	`, limit, uid)
}

func (p *PostgresStore) SetStatus(ctx context.Context, id, status string) (*Request, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE redeem_requests SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, uid, amount, status, created_at, updated_at
	`, id, status)
	return scanRequest(row)
}

func (p *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Request, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list redeem requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Request
	for rows.Next() {
		r := &Request{}
		if err := rows.Scan(&r.ID, &r.UID, &r.Amount, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRequest(row *sql.Row) (*Request, error) {
	r := &Request{}
	err := row.Scan(&r.ID, &r.UID, &r.Amount, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

var _ Store = (*PostgresStore)(nil)
