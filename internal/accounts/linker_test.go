package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardmail/accountlink/internal/provider"
	"github.com/wardmail/accountlink/internal/session"
	"github.com/wardmail/accountlink/internal/tokenstore"
)

func newTestLinker(t *testing.T) (*Linker, *MemoryStore, *tokenstore.Store, *session.Manager) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cipher, err := tokenstore.NewAESCipher(make([]byte, 32))
	require.NoError(t, err)

	accounts := NewMemoryStore()
	tokens := tokenstore.NewStore(tokenstore.NewMemoryRecords(), cipher, nil)
	sessions := session.NewManager(session.NewRedisStore(client), []byte("test-key"), "accountlink-test", time.Hour)

	return NewLinker(accounts, tokens, sessions, nil), accounts, tokens, sessions
}

func testResult() *provider.Result {
	return &provider.Result{
		Account: provider.Account{
			ID:          "acct-1",
			Provider:    "microsoft",
			Email:       "user@example.com",
			DisplayName: "Example User",
		},
		AccessToken: "tok-1",
		ExpiresAt:   time.Now().Add(time.Hour),
		CacheBlob:   []byte(`{"refresh_tokens":{"acct-1":"rt-1"}}`),
	}
}

func TestCompleteLinksAccount(t *testing.T) {
	linker, accounts, tokens, sessions := newTestLinker(t)
	ctx := context.Background()

	completion, err := linker.Complete(ctx, "user-1", testResult())
	require.NoError(t, err)

	assert.Equal(t, "microsoft", completion.Provider)
	assert.Equal(t, "acct-1", completion.ProviderAccountID)
	assert.Equal(t, "user@example.com", completion.Email)
	require.NotEmpty(t, completion.SessionToken)

	// The issued session token validates to the linking user
	userID, err := sessions.Validate(ctx, completion.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	// The account record is persisted
	acct, err := accounts.GetByProviderAccount(ctx, "microsoft", "acct-1")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "user-1", acct.UserID)
	assert.NotEmpty(t, acct.ID)

	// Tokens and cache blob are persisted
	token, _, ok := tokens.LoadAccessToken(ctx, "acct-1")
	require.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.NotNil(t, tokens.LoadCache(ctx, "acct-1"))
}

func TestCompleteUpsertsExistingAccount(t *testing.T) {
	linker, accounts, _, _ := newTestLinker(t)
	ctx := context.Background()

	first, err := linker.Complete(ctx, "user-1", testResult())
	require.NoError(t, err)

	// Re-linking the same provider account updates, not duplicates
	res := testResult()
	res.Account.Email = "renamed@example.com"
	second, err := linker.Complete(ctx, "user-1", res)
	require.NoError(t, err)

	assert.Equal(t, first.ProviderAccountID, second.ProviderAccountID)
	assert.Equal(t, "renamed@example.com", second.Email)

	acct, err := accounts.GetByProviderAccount(ctx, "microsoft", "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed@example.com", acct.Email)
}

func TestCompleteWithoutCacheBlob(t *testing.T) {
	linker, _, tokens, _ := newTestLinker(t)
	ctx := context.Background()

	res := testResult()
	res.CacheBlob = nil

	_, err := linker.Complete(ctx, "user-1", res)
	require.NoError(t, err)

	assert.Nil(t, tokens.LoadCache(ctx, "acct-1"))
	_, _, ok := tokens.LoadAccessToken(ctx, "acct-1")
	assert.True(t, ok)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	acct, err := store.GetByProviderAccount(context.Background(), "microsoft", "nobody")
	require.NoError(t, err)
	assert.Nil(t, acct)
}

func TestMemoryStoreUpsertAssignsID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.Upsert(ctx, &ExternalAccount{
		UserID:            "user-1",
		Provider:          "microsoft",
		ProviderAccountID: "acct-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	updated, err := store.Upsert(ctx, &ExternalAccount{
		UserID:            "user-2",
		Provider:          "microsoft",
		ProviderAccountID: "acct-1",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "user-2", updated.UserID)
}
