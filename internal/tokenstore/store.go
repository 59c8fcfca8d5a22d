package tokenstore

import (
	"context"
	"log/slog"
	"time"
)

// Record is the durable row kept per linked external account. Token material
// is only ever stored encrypted.
type Record struct {
	ProviderAccountID    string
	Provider             string
	EncryptedAccessToken []byte
	AccessTokenExpiresAt time.Time
	EncryptedCacheBlob   []byte
	CacheUpdatedAt       time.Time
	DisconnectedAt       *time.Time
}

// Records is the persistence backend for account token records.
type Records interface {
	// Get returns the record for the account, or nil when none exists.
	Get(ctx context.Context, providerAccountID string) (*Record, error)

	// Upsert creates or replaces the record for its account id.
	Upsert(ctx context.Context, rec *Record) error

	// UpdateAccessToken replaces the encrypted access token and its expiry.
	UpdateAccessToken(ctx context.Context, providerAccountID string, ciphertext []byte, expiresAt time.Time) error

	// UpdateCacheBlob replaces the encrypted cache blob.
	UpdateCacheBlob(ctx context.Context, providerAccountID string, ciphertext []byte) error

	// CheckHealth verifies the backend is reachable.
	CheckHealth(ctx context.Context) error
}

// Store is the token cache store: all reads decrypt and all writes encrypt.
// Writes are best-effort and never fail the authentication or refresh flow
// that triggered them; failures are logged and healed by the next successful
// token acquisition. Decryption failures degrade to a cache miss.
type Store struct {
	records Records
	cipher  Cipher
	logger  *slog.Logger
}

// NewStore creates a token cache store over the records backend.
func NewStore(records Records, cipher Cipher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{records: records, cipher: cipher, logger: logger}
}

// LoadCache returns the decrypted cache blob for the account, or nil when no
// usable cache exists.
func (s *Store) LoadCache(ctx context.Context, providerAccountID string) []byte {
	rec, err := s.records.Get(ctx, providerAccountID)
	if err != nil {
		s.logger.Warn("loading token cache failed",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
		return nil
	}
	if rec == nil || len(rec.EncryptedCacheBlob) == 0 {
		return nil
	}

	blob, err := s.cipher.Decrypt(rec.EncryptedCacheBlob)
	if err != nil {
		// Treated as cold start: the caller proceeds without a cache.
		s.logger.Warn("token cache decryption failed, treating as miss",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
		return nil
	}
	return blob
}

// SaveCache persists the cache blob for the account, creating the record if
// needed. Best-effort: failures are logged, never returned.
func (s *Store) SaveCache(ctx context.Context, providerAccountID, providerName string, blob []byte) {
	ciphertext, err := s.cipher.Encrypt(blob)
	if err != nil {
		s.logger.Warn("token cache encryption failed, dropping write",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
		return
	}

	rec, err := s.records.Get(ctx, providerAccountID)
	if err != nil {
		s.logger.Warn("loading record for cache write failed",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
		return
	}

	now := time.Now()
	if rec == nil {
		rec = &Record{
			ProviderAccountID:  providerAccountID,
			Provider:           providerName,
			EncryptedCacheBlob: ciphertext,
			CacheUpdatedAt:     now,
		}
		if err := s.records.Upsert(ctx, rec); err != nil {
			s.logger.Warn("persisting token cache failed",
				slog.String("provider_account_id", providerAccountID),
				slog.Any("error", err))
		}
		return
	}

	if err := s.records.UpdateCacheBlob(ctx, providerAccountID, ciphertext); err != nil {
		s.logger.Warn("persisting token cache failed",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
	}
}

// LoadAccessToken returns the decrypted access token and its expiry. ok is
// false when no token is stored or it cannot be decrypted.
func (s *Store) LoadAccessToken(ctx context.Context, providerAccountID string) (token string, expiresAt time.Time, ok bool) {
	rec, err := s.records.Get(ctx, providerAccountID)
	if err != nil {
		s.logger.Warn("loading access token failed",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
		return "", time.Time{}, false
	}
	if rec == nil || len(rec.EncryptedAccessToken) == 0 {
		return "", time.Time{}, false
	}

	plaintext, err := s.cipher.Decrypt(rec.EncryptedAccessToken)
	if err != nil {
		s.logger.Warn("access token decryption failed, treating as miss",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
		return "", time.Time{}, false
	}
	return string(plaintext), rec.AccessTokenExpiresAt, true
}

// SaveAccessToken persists the access token for the account, creating the
// record if needed. Best-effort: failures are logged, never returned.
func (s *Store) SaveAccessToken(ctx context.Context, providerAccountID, providerName, token string, expiresAt time.Time) {
	ciphertext, err := s.cipher.Encrypt([]byte(token))
	if err != nil {
		s.logger.Warn("access token encryption failed, dropping write",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
		return
	}

	rec, err := s.records.Get(ctx, providerAccountID)
	if err != nil {
		s.logger.Warn("loading record for token write failed",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
		return
	}

	if rec == nil {
		rec = &Record{
			ProviderAccountID:    providerAccountID,
			Provider:             providerName,
			EncryptedAccessToken: ciphertext,
			AccessTokenExpiresAt: expiresAt,
		}
		if err := s.records.Upsert(ctx, rec); err != nil {
			s.logger.Warn("persisting access token failed",
				slog.String("provider_account_id", providerAccountID),
				slog.Any("error", err))
		}
		return
	}

	if err := s.records.UpdateAccessToken(ctx, providerAccountID, ciphertext, expiresAt); err != nil {
		s.logger.Warn("persisting access token failed",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
	}
}

// CheckHealth verifies the records backend is reachable.
func (s *Store) CheckHealth(ctx context.Context) error {
	return s.records.CheckHealth(ctx)
}
