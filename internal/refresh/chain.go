// Package refresh produces live access tokens for linked accounts through an
// ordered chain of strategies, falling back strategy to strategy until one
// succeeds or the account needs interactive re-authentication.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wardmail/accountlink/internal/provider"
	"github.com/wardmail/accountlink/internal/tokenstore"
)

// defaultSafetyBuffer is subtracted from a stored token's expiry before the
// fast path will serve it.
const defaultSafetyBuffer = 5 * time.Minute

// ErrReauthenticationRequired is returned when every strategy fails. It is
// always surfaced to the caller and never retried automatically.
var ErrReauthenticationRequired = errors.New("account requires re-authentication")

// Chain is the ordered token refresh chain for one identity provider.
type Chain struct {
	store    *tokenstore.Store
	provider provider.Provider

	safetyBuffer time.Duration
	logger       *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithSafetyBuffer sets how long before expiry a stored token stops being
// served directly.
func WithSafetyBuffer(d time.Duration) ChainOption {
	return func(c *Chain) {
		c.safetyBuffer = d
	}
}

// WithChainLogger sets the chain logger.
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}

// NewChain creates a refresh chain over the token store and provider.
func NewChain(store *tokenstore.Store, p provider.Provider, opts ...ChainOption) *Chain {
	c := &Chain{
		store:        store,
		provider:     p,
		safetyBuffer: defaultSafetyBuffer,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetLiveToken returns a usable access token for the account, trying each
// strategy in order:
//
//  1. stored token that has not reached its expiry safety buffer
//  2. silent acquisition from the persisted cache blob
//  3. direct refresh-credential exchange against the token endpoint
//
// When all strategies fail it returns ErrReauthenticationRequired.
func (c *Chain) GetLiveToken(ctx context.Context, providerAccountID string) (string, error) {
	// Strategy 1: stored-token fast path, no network.
	if token, expiresAt, ok := c.store.LoadAccessToken(ctx, providerAccountID); ok {
		if time.Until(expiresAt) > c.safetyBuffer {
			return token, nil
		}
	}

	blob := c.store.LoadCache(ctx, providerAccountID)

	// Strategy 2: hand the opaque cache back to the provider for silent
	// acquisition.
	if blob != nil {
		res, err := c.provider.AcquireSilent(ctx, providerAccountID, blob)
		if err == nil {
			c.persist(ctx, providerAccountID, res)
			return res.AccessToken, nil
		}
		c.logger.Warn("silent token acquisition failed",
			slog.String("provider_account_id", providerAccountID),
			slog.Any("error", err))
	}

	// Strategy 3: extract a refresh credential from the blob and exchange
	// it directly.
	if blob != nil {
		if token, err := c.exchangeFromBlob(ctx, providerAccountID, blob); err == nil {
			return token, nil
		} else if !errors.Is(err, errNoCredential) {
			c.logger.Warn("direct refresh exchange failed",
				slog.String("provider_account_id", providerAccountID),
				slog.Any("error", err))
		}
	}

	return "", ErrReauthenticationRequired
}

var errNoCredential = errors.New("no refresh credential in cache blob")

func (c *Chain) exchangeFromBlob(ctx context.Context, providerAccountID string, blob []byte) (string, error) {
	key, credential, fallback, ok := extractRefreshCredential(blob, providerAccountID)
	if !ok {
		return "", errNoCredential
	}
	if fallback {
		c.logger.Warn("no exact credential key match, using sole cached credential",
			slog.String("provider_account_id", providerAccountID),
			slog.String("credential_key", key))
	}

	res, err := c.provider.ExchangeRefreshCredential(ctx, providerAccountID, credential)
	if err != nil {
		return "", err
	}

	c.store.SaveAccessToken(ctx, providerAccountID, c.provider.Name(), res.AccessToken, res.ExpiresAt)

	// If the provider rotated the credential, rewrite it into the blob so
	// the next exchange uses the fresh one.
	if res.RefreshToken != "" && res.RefreshToken != credential {
		if updated, err := replaceRefreshCredential(blob, key, res.RefreshToken); err == nil {
			c.store.SaveCache(ctx, providerAccountID, c.provider.Name(), updated)
		} else {
			c.logger.Warn("rewriting rotated refresh credential failed",
				slog.String("provider_account_id", providerAccountID),
				slog.Any("error", err))
		}
	}

	return res.AccessToken, nil
}

// persist saves a successful acquisition's token and, when the provider
// returned an updated cache, the cache blob. Both writes are best-effort.
func (c *Chain) persist(ctx context.Context, providerAccountID string, res *provider.Result) {
	c.store.SaveAccessToken(ctx, providerAccountID, c.provider.Name(), res.AccessToken, res.ExpiresAt)
	if res.CacheBlob != nil {
		c.store.SaveCache(ctx, providerAccountID, c.provider.Name(), res.CacheBlob)
	}
}
