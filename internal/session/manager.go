// Package session issues and validates application session tokens. Tokens
// are signed JWTs backed by a revocable Redis session record.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken indicates the token failed signature or claims
	// validation.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrSessionNotFound indicates the session record is gone (expired or
	// revoked).
	ErrSessionNotFound = errors.New("session not found")
)

// Session is the server-side record behind an issued token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists session records.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	CheckHealth(ctx context.Context) error
}

// Manager mints and validates session tokens.
type Manager struct {
	store      Store
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// NewManager creates a session manager. Tokens are HS256-signed with
// signingKey and valid for ttl.
func NewManager(store Store, signingKey []byte, issuer string, ttl time.Duration) *Manager {
	return &Manager{
		store:      store,
		signingKey: signingKey,
		issuer:     issuer,
		ttl:        ttl,
	}
}

// Issue creates a session for the user and returns its signed token.
func (m *Manager) Issue(ctx context.Context, userID string) (string, error) {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}

	if err := m.store.Save(ctx, s); err != nil {
		return "", fmt.Errorf("saving session: %w", err)
	}

	claims := jwt.RegisteredClaims{
		ID:        s.ID,
		Subject:   userID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return token, nil
}

// Validate parses a token and confirms its session record still exists.
// It returns the user id the session belongs to.
func (m *Manager) Validate(ctx context.Context, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.signingKey, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	s, err := m.store.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("loading session: %w", err)
	}
	return s.UserID, nil
}

// Revoke deletes the session record behind a token id. Idempotent.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}

// CheckHealth verifies the session store backend is reachable.
func (m *Manager) CheckHealth(ctx context.Context) error {
	return m.store.CheckHealth(ctx)
}
