package tokenstore

import (
	"context"
	"sync"
	"time"
)

// Verify interface compliance
var _ Records = (*MemoryRecords)(nil)

// MemoryRecords is an in-memory Records backend for tests and development.
type MemoryRecords struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRecords creates an empty in-memory backend.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{records: make(map[string]*Record)}
}

// Get returns a copy of the record for the account, or nil when none exists.
func (m *MemoryRecords) Get(ctx context.Context, providerAccountID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[providerAccountID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

// Upsert creates or replaces the record for its account id.
func (m *MemoryRecords) Upsert(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *rec
	m.records[rec.ProviderAccountID] = &copied
	return nil
}

// UpdateAccessToken replaces the encrypted access token and its expiry.
func (m *MemoryRecords) UpdateAccessToken(ctx context.Context, providerAccountID string, ciphertext []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[providerAccountID]; ok {
		rec.EncryptedAccessToken = ciphertext
		rec.AccessTokenExpiresAt = expiresAt
	}
	return nil
}

// UpdateCacheBlob replaces the encrypted cache blob.
func (m *MemoryRecords) UpdateCacheBlob(ctx context.Context, providerAccountID string, ciphertext []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[providerAccountID]; ok {
		rec.EncryptedCacheBlob = ciphertext
		rec.CacheUpdatedAt = time.Now()
	}
	return nil
}

// CheckHealth always succeeds.
func (m *MemoryRecords) CheckHealth(ctx context.Context) error {
	return nil
}
