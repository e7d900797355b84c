// Package auth provides request authentication for coinback.
//
// Authentication model:
// - Mobile clients hold a bearer session token issued at provisioning
// - Tokens are random, prefixed "ut_", stored as SHA-256 hashes
// - Admin endpoints are gated by a shared X-Admin-Secret header
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// Errors
var (
	ErrNoToken      = errors.New("session token required")
	ErrInvalidToken = errors.New("invalid or revoked session token")
	ErrTokenMissing = errors.New("session token not found")
)

// Token is a stored user session token.
type Token struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"` // SHA256 hash of the raw token (stored)
	UID       string     `json:"uid"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  time.Time  `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Store persists session tokens
type Store interface {
	Create(ctx context.Context, tok *Token) error
	GetByHash(ctx context.Context, hash string) (*Token, error)
	GetByUID(ctx context.Context, uid string) ([]*Token, error)
	Update(ctx context.Context, tok *Token) error
	Delete(ctx context.Context, id string) error
}

// Manager handles token issuance and validation
type Manager struct {
	store Store
}

// NewManager creates a new auth manager
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// IssueToken creates a new session token for a user.
// Returns the raw token (shown once) and the stored metadata.
func (m *Manager) IssueToken(ctx context.Context, uid string) (rawToken string, tok *Token, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}

	rawToken = "ut_" + hex.EncodeToString(b)

	tok = &Token{
		ID:        "tk_" + hex.EncodeToString(b[:8]),
		Hash:      hashToken(rawToken),
		UID:       uid,
		CreatedAt: time.Now(),
	}

	if err := m.store.Create(ctx, tok); err != nil {
		return "", nil, err
	}

	return rawToken, tok, nil
}

// ValidateToken validates a raw token and returns the stored metadata
func (m *Manager) ValidateToken(ctx context.Context, rawToken string) (*Token, error) {
	if rawToken == "" {
		return nil, ErrNoToken
	}

	rawToken = strings.TrimPrefix(rawToken, "Bearer ")
	rawToken = strings.TrimSpace(rawToken)

	if !strings.HasPrefix(rawToken, "ut_") {
		return nil, ErrInvalidToken
	}

	tok, err := m.store.GetByHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if tok.Revoked {
		return nil, ErrInvalidToken
	}

	if tok.ExpiresAt != nil && time.Now().After(*tok.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	// Update last used (fire and forget)
	go func() {
		tok.LastUsed = time.Now()
		_ = m.store.Update(context.Background(), tok)
	}()

	return tok, nil
}

// RevokeUserTokens revokes all active tokens for a user.
func (m *Manager) RevokeUserTokens(ctx context.Context, uid string) error {
	toks, err := m.store.GetByUID(ctx, uid)
	if err != nil {
		return err
	}
	for _, tok := range toks {
		if !tok.Revoked {
			tok.Revoked = true
			if err := m.store.Update(ctx, tok); err != nil {
				return err
			}
		}
	}
	return nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token // by ID
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*Token),
	}
}

func (s *MemoryStore) Create(ctx context.Context, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.ID] = tok
	return nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.tokens {
		if tok.Hash == hash {
			return tok, nil
		}
	}
	return nil, ErrTokenMissing
}

func (s *MemoryStore) GetByUID(ctx context.Context, uid string) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Token
	for _, tok := range s.tokens {
		if tok.UID == uid {
			result = append(result, tok)
		}
	}
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.ID] = tok
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}
