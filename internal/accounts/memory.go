package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Verify interface compliance
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*ExternalAccount // keyed by provider + "/" + provider account id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*ExternalAccount)}
}

// Upsert creates or updates the record for the provider account.
func (m *MemoryStore) Upsert(ctx context.Context, acct *ExternalAccount) (*ExternalAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := acct.Provider + "/" + acct.ProviderAccountID
	now := time.Now()

	if existing, ok := m.accounts[key]; ok {
		existing.UserID = acct.UserID
		existing.Email = acct.Email
		existing.DisplayName = acct.DisplayName
		existing.UpdatedAt = now
		copied := *existing
		return &copied, nil
	}

	created := *acct
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	m.accounts[key] = &created

	copied := created
	return &copied, nil
}

// GetByProviderAccount returns the record for a provider account, or nil.
func (m *MemoryStore) GetByProviderAccount(ctx context.Context, providerName, providerAccountID string) (*ExternalAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct, ok := m.accounts[providerName+"/"+providerAccountID]; ok {
		copied := *acct
		return &copied, nil
	}
	return nil, nil
}

// CheckHealth always succeeds.
func (m *MemoryStore) CheckHealth(ctx context.Context) error {
	return nil
}
