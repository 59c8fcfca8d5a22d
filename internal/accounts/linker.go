package accounts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wardmail/accountlink/internal/authflow"
	"github.com/wardmail/accountlink/internal/provider"
	"github.com/wardmail/accountlink/internal/session"
	"github.com/wardmail/accountlink/internal/tokenstore"
)

// Verify interface compliance
var _ authflow.Completer = (*Linker)(nil)

// Linker executes the completion side effect of a finished authorization
// flow: record the external account, persist tokens, and issue an
// application session. The poll coordinator guarantees it runs at most once
// per flow.
type Linker struct {
	accounts Store
	tokens   *tokenstore.Store
	sessions *session.Manager
	logger   *slog.Logger
}

// NewLinker creates the completion side effect over its collaborators.
func NewLinker(accounts Store, tokens *tokenstore.Store, sessions *session.Manager, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		accounts: accounts,
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
	}
}

// Complete links the authenticated provider account to the user.
func (l *Linker) Complete(ctx context.Context, userID string, res *provider.Result) (*authflow.Completion, error) {
	acct, err := l.accounts.Upsert(ctx, &ExternalAccount{
		UserID:            userID,
		Provider:          res.Account.Provider,
		ProviderAccountID: res.Account.ID,
		Email:             res.Account.Email,
		DisplayName:       res.Account.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("recording external account: %w", err)
	}

	// Token persistence is best-effort: a write failure must not fail the
	// flow that produced the tokens.
	l.tokens.SaveAccessToken(ctx, res.Account.ID, res.Account.Provider, res.AccessToken, res.ExpiresAt)
	if res.CacheBlob != nil {
		l.tokens.SaveCache(ctx, res.Account.ID, res.Account.Provider, res.CacheBlob)
	}

	token, err := l.sessions.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("issuing application session: %w", err)
	}

	l.logger.Info("external account linked",
		slog.String("user_id", userID),
		slog.String("provider", acct.Provider),
		slog.String("provider_account_id", acct.ProviderAccountID))

	return &authflow.Completion{
		Provider:          acct.Provider,
		ProviderAccountID: acct.ProviderAccountID,
		Email:             acct.Email,
		DisplayName:       acct.DisplayName,
		SessionToken:      token,
	}, nil
}
