package accounts

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//go:embed schema.sql
var schema string

// Verify interface compliance
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store over an open connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies the embedded schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Upsert creates or updates the record for the provider account.
func (s *PostgresStore) Upsert(ctx context.Context, acct *ExternalAccount) (*ExternalAccount, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now()

	query := `
		INSERT INTO external_accounts (id, user_id, provider,
			provider_account_id, email, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (provider, provider_account_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	out := *acct
	err := s.db.QueryRowContext(ctx, query,
		acct.ID, acct.UserID, acct.Provider, acct.ProviderAccountID,
		acct.Email, acct.DisplayName, now,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting external account: %w", err)
	}
	return &out, nil
}

// GetByProviderAccount returns the record for a provider account, or nil.
func (s *PostgresStore) GetByProviderAccount(ctx context.Context, providerName, providerAccountID string) (*ExternalAccount, error) {
	query := `
		SELECT id, user_id, provider, provider_account_id, email,
		       display_name, created_at, updated_at
		FROM external_accounts
		WHERE provider = $1 AND provider_account_id = $2
	`

	var acct ExternalAccount
	err := s.db.QueryRowContext(ctx, query, providerName, providerAccountID).Scan(
		&acct.ID, &acct.UserID, &acct.Provider, &acct.ProviderAccountID,
		&acct.Email, &acct.DisplayName, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting external account: %w", err)
	}
	return &acct, nil
}

// CheckHealth verifies database connectivity.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
