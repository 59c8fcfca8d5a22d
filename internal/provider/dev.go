package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardmail/accountlink/internal/validation"
)

// DevProvider is an in-process identity provider for development and tests.
// It allocates real RFC 8628 user codes but resolves sign-in locally through
// Approve and Decline instead of a remote authorization server.
type DevProvider struct {
	name            string
	verificationURI string
	codeTTL         time.Duration

	mu      sync.Mutex
	pending map[string]chan devOutcome // normalized user code -> resolution
	issued  map[string]string          // refresh credential -> account id
}

type devOutcome struct {
	account Account
	err     error
}

// NewDevProvider creates a local provider. verificationURI is what users
// would visit in a real flow; it is only echoed back in prompts.
func NewDevProvider(name, verificationURI string, codeTTL time.Duration) *DevProvider {
	return &DevProvider{
		name:            name,
		verificationURI: verificationURI,
		codeTTL:         codeTTL,
		pending:         make(map[string]chan devOutcome),
		issued:          make(map[string]string),
	}
}

// Name returns the provider identifier.
func (p *DevProvider) Name() string { return p.name }

// AcquireByDeviceCode allocates a user code, reports the prompt, then blocks
// until Approve or Decline resolves the code, the code expires, or ctx ends.
func (p *DevProvider) AcquireByDeviceCode(ctx context.Context, onPrompt func(Prompt)) (*Result, error) {
	userCode, err := generateUserCode()
	if err != nil {
		return nil, err
	}

	outcome := make(chan devOutcome, 1)
	key := validation.NormalizeCode(userCode)

	p.mu.Lock()
	p.pending[key] = outcome
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, key)
		p.mu.Unlock()
	}()

	expiresAt := time.Now().Add(p.codeTTL)
	onPrompt(Prompt{
		UserCode:        userCode,
		VerificationURI: p.verificationURI,
		Message: fmt.Sprintf("To sign in, visit %s and enter the code %s",
			p.verificationURI, userCode),
		ExpiresAt: expiresAt,
		Interval:  time.Second,
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Until(expiresAt)):
		return nil, ErrCodeExpired
	case o := <-outcome:
		if o.err != nil {
			return nil, o.err
		}
		return p.issueTokens(o.account)
	}
}

// Approve resolves a pending user code as the given account.
func (p *DevProvider) Approve(userCode string, account Account) error {
	return p.resolve(userCode, devOutcome{account: account})
}

// Decline resolves a pending user code as rejected by the user.
func (p *DevProvider) Decline(userCode string) error {
	return p.resolve(userCode, devOutcome{err: ErrAuthorizationDeclined})
}

func (p *DevProvider) resolve(userCode string, o devOutcome) error {
	key := validation.NormalizeCode(userCode)

	p.mu.Lock()
	outcome, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending authorization for code %s", userCode)
	}
	outcome <- o
	return nil
}

// AcquireSilent redeems the cached refresh credential for the account.
func (p *DevProvider) AcquireSilent(ctx context.Context, accountID string, cache []byte) (*Result, error) {
	c, err := parseTokenCache(cache)
	if err != nil {
		return nil, err
	}

	credential, ok := c.RefreshTokens[accountID]
	if !ok || credential == "" {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNoCachedCredential)
	}

	account, err := p.accountForCredential(accountID, credential)
	if err != nil {
		return nil, err
	}
	if cached, ok := c.Accounts[accountID]; ok {
		account = cached
	}
	return p.issueTokens(account)
}

// ExchangeRefreshCredential exchanges and rotates a refresh credential.
func (p *DevProvider) ExchangeRefreshCredential(ctx context.Context, accountID, credential string) (*Result, error) {
	account, err := p.accountForCredential(accountID, credential)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	delete(p.issued, credential)
	p.mu.Unlock()

	res, err := p.issueTokens(account)
	if err != nil {
		return nil, err
	}
	res.CacheBlob = nil // caller rewrites the credential into its own blob
	return res, nil
}

func (p *DevProvider) accountForCredential(accountID, credential string) (Account, error) {
	p.mu.Lock()
	issuedTo, ok := p.issued[credential]
	p.mu.Unlock()

	if !ok || issuedTo != accountID {
		return Account{}, fmt.Errorf("account %s: %w", accountID, ErrNoCachedCredential)
	}
	return Account{ID: accountID, Provider: p.name}, nil
}

func (p *DevProvider) issueTokens(account Account) (*Result, error) {
	accessToken, err := generateSecureCode(32)
	if err != nil {
		return nil, err
	}
	refreshToken, err := generateSecureCode(32)
	if err != nil {
		return nil, err
	}

	account.Provider = p.name

	p.mu.Lock()
	p.issued[refreshToken] = account.ID
	p.mu.Unlock()

	c := newTokenCache(p.name)
	c.put(account, refreshToken)
	blob, err := c.marshal()
	if err != nil {
		return nil, err
	}

	return &Result{
		Account:      account,
		AccessToken:  accessToken,
		ExpiresAt:    time.Now().Add(time.Hour),
		RefreshToken: refreshToken,
		CacheBlob:    blob,
	}, nil
}
