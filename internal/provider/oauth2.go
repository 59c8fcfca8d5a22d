package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// OAuth2Provider implements Provider against any identity provider that
// supports the device authorization grant, using golang.org/x/oauth2 for the
// wire protocol.
type OAuth2Provider struct {
	name string
	cfg  *oauth2.Config
}

// OAuth2Config configures an OAuth2Provider.
type OAuth2Config struct {
	Name          string // provider identifier, e.g. "microsoft"
	ClientID      string
	ClientSecret  string
	AuthURL       string
	DeviceAuthURL string
	TokenURL      string
	Scopes        []string
}

// NewOAuth2Provider creates a device-flow capable provider.
func NewOAuth2Provider(cfg OAuth2Config) *OAuth2Provider {
	return &OAuth2Provider{
		name: cfg.Name,
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:       cfg.AuthURL,
				DeviceAuthURL: cfg.DeviceAuthURL,
				TokenURL:      cfg.TokenURL,
			},
		},
	}
}

// Name returns the provider identifier.
func (p *OAuth2Provider) Name() string { return p.name }

// AcquireByDeviceCode requests a device code, reports the prompt, then blocks
// polling the token endpoint until the grant reaches a terminal state.
func (p *OAuth2Provider) AcquireByDeviceCode(ctx context.Context, onPrompt func(Prompt)) (*Result, error) {
	da, err := p.cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting device authorization: %w", err)
	}

	onPrompt(Prompt{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
		Message: fmt.Sprintf("To sign in, visit %s and enter the code %s",
			da.VerificationURI, da.UserCode),
		ExpiresAt: da.Expiry,
		Interval:  time.Duration(da.Interval) * time.Second,
	})

	// DeviceAccessToken polls the token endpoint itself, honoring
	// authorization_pending and slow_down, so only terminal outcomes return.
	tok, err := p.cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, classifyRetrieveError(err)
	}

	return p.buildResult(tok)
}

// AcquireSilent redeems the refresh credential recorded in the cache blob for
// the given account.
func (p *OAuth2Provider) AcquireSilent(ctx context.Context, accountID string, cache []byte) (*Result, error) {
	c, err := parseTokenCache(cache)
	if err != nil {
		return nil, err
	}

	refreshToken, ok := c.RefreshTokens[accountID]
	if !ok || refreshToken == "" {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNoCachedCredential)
	}

	tok, err := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classifyRetrieveError(err)
	}

	res, err := p.buildResult(tok)
	if err != nil {
		return nil, err
	}

	// If the provider did not return fresh identity claims, keep the
	// account recorded in the cache.
	if res.Account.ID == "" {
		res.Account = c.Accounts[accountID]
		res.Account.ID = accountID
		res.Account.Provider = p.name

		c.put(res.Account, tok.RefreshToken)
		blob, err := c.marshal()
		if err != nil {
			return nil, err
		}
		res.CacheBlob = blob
	}
	return res, nil
}

// ExchangeRefreshCredential exchanges a bare refresh credential at the token
// endpoint. The cache blob is not rewritten here; the caller owns that.
func (p *OAuth2Provider) ExchangeRefreshCredential(ctx context.Context, accountID, credential string) (*Result, error) {
	tok, err := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: credential}).Token()
	if err != nil {
		return nil, classifyRetrieveError(err)
	}

	res := &Result{
		Account:      Account{ID: accountID, Provider: p.name},
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
	}
	if acct, ok := p.accountFromIDToken(tok); ok {
		acct.ID = accountID
		res.Account = acct
	}
	return res, nil
}

// buildResult assembles a Result and a fresh cache blob from a token response.
func (p *OAuth2Provider) buildResult(tok *oauth2.Token) (*Result, error) {
	res := &Result{
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
	}

	acct, ok := p.accountFromIDToken(tok)
	if !ok {
		return res, nil
	}
	res.Account = acct

	c := newTokenCache(p.name)
	c.put(acct, tok.RefreshToken)
	blob, err := c.marshal()
	if err != nil {
		return nil, err
	}
	res.CacheBlob = blob
	return res, nil
}

// accountFromIDToken extracts the account identity from the id_token claims.
// The token arrived directly from the provider's token endpoint over TLS, so
// the claims are read without signature verification; this is an identity
// hint, not an authorization decision.
func (p *OAuth2Provider) accountFromIDToken(tok *oauth2.Token) (Account, bool) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return Account{}, false
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return Account{}, false
	}

	acct := Account{Provider: p.name}
	if oid, _ := claims["oid"].(string); oid != "" {
		acct.ID = oid
	} else if sub, _ := claims["sub"].(string); sub != "" {
		acct.ID = sub
	} else {
		return Account{}, false
	}
	if email, _ := claims["preferred_username"].(string); email != "" {
		acct.Email = email
	} else if email, _ := claims["email"].(string); email != "" {
		acct.Email = email
	}
	acct.DisplayName, _ = claims["name"].(string)
	return acct, true
}

// classifyRetrieveError maps OAuth error codes onto the package sentinels.
func classifyRetrieveError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	switch re.ErrorCode {
	case "authorization_pending", "slow_down":
		return fmt.Errorf("%w: %s", ErrAuthorizationPending, re.ErrorCode)
	case "access_denied", "authorization_declined":
		return fmt.Errorf("%w: %s", ErrAuthorizationDeclined, re.ErrorCode)
	case "expired_token":
		return fmt.Errorf("%w: %s", ErrCodeExpired, re.ErrorCode)
	default:
		return fmt.Errorf("token endpoint error %q: %w", re.ErrorCode, err)
	}
}
