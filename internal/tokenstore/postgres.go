package tokenstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// Verify interface compliance
var _ Records = (*PostgresRecords)(nil)

// PostgresRecords implements Records using PostgreSQL.
type PostgresRecords struct {
	db *sql.DB
}

// NewPostgresRecords creates a Records backend over an open connection pool.
func NewPostgresRecords(db *sql.DB) *PostgresRecords {
	return &PostgresRecords{db: db}
}

// OpenPostgres opens a connection pool and verifies connectivity.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// EnsureSchema applies the embedded schema.
func (r *PostgresRecords) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Get retrieves the record for the account, or nil when none exists.
func (r *PostgresRecords) Get(ctx context.Context, providerAccountID string) (*Record, error) {
	query := `
		SELECT provider_account_id, provider, encrypted_access_token,
		       access_token_expires_at, encrypted_cache_blob, cache_updated_at,
		       disconnected_at
		FROM account_tokens
		WHERE provider_account_id = $1
	`

	var rec Record
	err := r.db.QueryRowContext(ctx, query, providerAccountID).Scan(
		&rec.ProviderAccountID,
		&rec.Provider,
		&rec.EncryptedAccessToken,
		&rec.AccessTokenExpiresAt,
		&rec.EncryptedCacheBlob,
		&rec.CacheUpdatedAt,
		&rec.DisconnectedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting account token record: %w", err)
	}

	return &rec, nil
}

// Upsert creates or replaces the record for its account id.
func (r *PostgresRecords) Upsert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO account_tokens (provider_account_id, provider,
			encrypted_access_token, access_token_expires_at,
			encrypted_cache_blob, cache_updated_at, disconnected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_account_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			encrypted_access_token = EXCLUDED.encrypted_access_token,
			access_token_expires_at = EXCLUDED.access_token_expires_at,
			encrypted_cache_blob = EXCLUDED.encrypted_cache_blob,
			cache_updated_at = EXCLUDED.cache_updated_at,
			disconnected_at = EXCLUDED.disconnected_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ProviderAccountID,
		rec.Provider,
		rec.EncryptedAccessToken,
		rec.AccessTokenExpiresAt,
		rec.EncryptedCacheBlob,
		rec.CacheUpdatedAt,
		rec.DisconnectedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting account token record: %w", err)
	}
	return nil
}

// UpdateAccessToken replaces the encrypted access token and its expiry.
func (r *PostgresRecords) UpdateAccessToken(ctx context.Context, providerAccountID string, ciphertext []byte, expiresAt time.Time) error {
	query := `
		UPDATE account_tokens
		SET encrypted_access_token = $2, access_token_expires_at = $3
		WHERE provider_account_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, providerAccountID, ciphertext, expiresAt); err != nil {
		return fmt.Errorf("updating access token: %w", err)
	}
	return nil
}

// UpdateCacheBlob replaces the encrypted cache blob.
func (r *PostgresRecords) UpdateCacheBlob(ctx context.Context, providerAccountID string, ciphertext []byte) error {
	query := `
		UPDATE account_tokens
		SET encrypted_cache_blob = $2, cache_updated_at = $3
		WHERE provider_account_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, providerAccountID, ciphertext, time.Now()); err != nil {
		return fmt.Errorf("updating cache blob: %w", err)
	}
	return nil
}

// CheckHealth verifies database connectivity.
func (r *PostgresRecords) CheckHealth(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
