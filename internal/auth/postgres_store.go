package auth

import (
	"context"
	"database/sql"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed token store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, tok *Token) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_tokens (id, hash, uid, created_at, last_used, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, tok.ID, tok.Hash, tok.UID, tok.CreatedAt, tok.LastUsed, tok.ExpiresAt, tok.Revoked)
	return err
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Token, error) {
	tok := &Token{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, hash, uid, created_at, last_used, expires_at, revoked
		FROM user_tokens WHERE hash = $1
	`, hash).Scan(&tok.ID, &tok.Hash, &tok.UID, &tok.CreatedAt, &tok.LastUsed, &tok.ExpiresAt, &tok.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrTokenMissing
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}

func (p *PostgresStore) GetByUID(ctx context.Context, uid string) ([]*Token, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, hash, uid, created_at, last_used, expires_at, revoked
		FROM user_tokens WHERE uid = $1
	`, uid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Token
	for rows.Next() {
		tok := &Token{}
		if err := rows.Scan(&tok.ID, &tok.Hash, &tok.UID, &tok.CreatedAt, &tok.LastUsed, &tok.ExpiresAt, &tok.Revoked); err != nil {
			return nil, err
		}
		result = append(result, tok)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, tok *Token) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE user_tokens SET last_used = $2, expires_at = $3, revoked = $4 WHERE id = $1
	`, tok.ID, tok.LastUsed, tok.ExpiresAt, tok.Revoked)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE id = $1`, id)
	return err
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)
