// Package provider abstracts the identity providers that accountlink can
// authenticate against using the OAuth 2.0 Device Authorization Grant
// (RFC 8628). Implementations own the wire protocol and the serialized token
// cache format; callers treat the cache as an opaque blob.
package provider

import (
	"context"
	"errors"
	"time"
)

// Common errors surfaced by provider implementations. Callers classify them
// with errors.Is; implementations wrap them with provider-specific detail.
var (
	// ErrAuthorizationPending indicates the user has not yet completed
	// sign-in. It is transient and never terminal for a flow.
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrAuthorizationDeclined indicates the user rejected the request.
	ErrAuthorizationDeclined = errors.New("authorization declined")

	// ErrCodeExpired indicates the device code expired before the user
	// completed sign-in.
	ErrCodeExpired = errors.New("device code expired")

	// ErrNoCachedCredential indicates the cache blob holds no usable
	// credential for the requested account.
	ErrNoCachedCredential = errors.New("no cached credential for account")
)

// Account identifies an authenticated external account.
type Account struct {
	// ID is the provider's stable identifier for the account.
	ID string `json:"id"`

	// Provider names the issuing identity provider.
	Provider string `json:"provider"`

	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Prompt carries the user-facing instructions allocated by the provider for a
// device authorization attempt.
type Prompt struct {
	UserCode        string
	VerificationURI string
	Message         string
	ExpiresAt       time.Time
	Interval        time.Duration
}

// Result is the outcome of a successful token acquisition.
type Result struct {
	Account     Account
	AccessToken string
	ExpiresAt   time.Time

	// RefreshToken is set when the provider issued or rotated a refresh
	// credential outside the cache blob, e.g. on a direct exchange.
	RefreshToken string

	// CacheBlob is the provider-owned serialized token cache after this
	// acquisition. Nil means the cache is unchanged.
	CacheBlob []byte
}

// Provider is implemented per identity provider.
type Provider interface {
	// Name returns the provider identifier stored alongside account records.
	Name() string

	// AcquireByDeviceCode runs a full device authorization grant. It invokes
	// onPrompt exactly once, as soon as the provider has allocated a user
	// code, then blocks until the user completes sign-in, the code expires,
	// or ctx is cancelled.
	AcquireByDeviceCode(ctx context.Context, onPrompt func(Prompt)) (*Result, error)

	// AcquireSilent obtains a fresh access token from a previously persisted
	// cache blob without user interaction.
	AcquireSilent(ctx context.Context, accountID string, cache []byte) (*Result, error)

	// ExchangeRefreshCredential exchanges a bare refresh credential at the
	// provider's token endpoint. Used when the cache blob cannot be handed
	// back to the provider wholesale but a credential could be extracted.
	ExchangeRefreshCredential(ctx context.Context, accountID, credential string) (*Result, error)
}
