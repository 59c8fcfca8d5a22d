// Package accounts records the external accounts a user has linked and
// implements the completion side effect of a finished authorization flow.
package accounts

import (
	"context"
	"time"
)

// ExternalAccount is one linked provider account belonging to a user.
type ExternalAccount struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	Email             string
	DisplayName       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Store persists external account records.
type Store interface {
	// Upsert creates the account record or updates the existing one for the
	// same (provider, provider_account_id) pair.
	Upsert(ctx context.Context, acct *ExternalAccount) (*ExternalAccount, error)

	// GetByProviderAccount returns the record for a provider account, or nil
	// when none exists.
	GetByProviderAccount(ctx context.Context, providerName, providerAccountID string) (*ExternalAccount, error)

	// CheckHealth verifies the backend is reachable.
	CheckHealth(ctx context.Context) error
}
