package authflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wardmail/accountlink/internal/provider"
)

// mockOutcome is pushed into a mockProvider to resolve a pending grant.
type mockOutcome struct {
	res *provider.Result
	err error
}

// mockProvider implements provider.Provider for tests. Each device code
// acquisition reports the configured prompt, then blocks until an outcome is
// sent on results or the context ends.
type mockProvider struct {
	noPrompt bool
	prompt   provider.Prompt
	results  chan mockOutcome
}

func newMockProvider(expiresIn time.Duration) *mockProvider {
	return &mockProvider{
		prompt: provider.Prompt{
			UserCode:        "BCDH-KLMN",
			VerificationURI: "https://example.com/device",
			Message:         "enter the code",
			ExpiresAt:       time.Now().Add(expiresIn),
			Interval:        time.Second,
		},
		results: make(chan mockOutcome, 1),
	}
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) AcquireByDeviceCode(ctx context.Context, onPrompt func(provider.Prompt)) (*provider.Result, error) {
	if !m.noPrompt {
		onPrompt(m.prompt)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-m.results:
		return o.res, o.err
	}
}

func (m *mockProvider) AcquireSilent(ctx context.Context, accountID string, cache []byte) (*provider.Result, error) {
	return nil, provider.ErrNoCachedCredential
}

func (m *mockProvider) ExchangeRefreshCredential(ctx context.Context, accountID, credential string) (*provider.Result, error) {
	return nil, provider.ErrNoCachedCredential
}

func (m *mockProvider) succeed(accountID string) {
	m.results <- mockOutcome{res: &provider.Result{
		Account: provider.Account{
			ID:       accountID,
			Provider: "mock",
			Email:    "user@example.com",
		},
		AccessToken: "token-" + accountID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}}
}

func (m *mockProvider) fail(err error) {
	m.results <- mockOutcome{err: err}
}

// mockCompleter counts side-effect executions.
type mockCompleter struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	fail  bool
}

func (c *mockCompleter) Complete(ctx context.Context, userID string, res *provider.Result) (*Completion, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.delay):
		}
	}
	if c.fail {
		return nil, errors.New("side effect failed")
	}

	return &Completion{
		Provider:          res.Account.Provider,
		ProviderAccountID: res.Account.ID,
		Email:             res.Account.Email,
		SessionToken:      "session-" + userID,
	}, nil
}

func (c *mockCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// testEngine bundles a wired registry, orchestrator, and poll coordinator.
type testEngine struct {
	registry     *Registry
	orchestrator *Orchestrator
	poller       *PollCoordinator
	provider     *mockProvider
	completer    *mockCompleter
}

func newTestEngine(opts ...func(*testEngine)) *testEngine {
	e := &testEngine{
		provider:  newMockProvider(15 * time.Minute),
		completer: &mockCompleter{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registry = NewRegistry(WithSweepInterval(time.Hour))
	e.orchestrator = NewOrchestrator(e.registry, e.provider, true)
	e.poller = NewPollCoordinator(e.registry, e.completer,
		WithPollWait(10*time.Millisecond))
	return e
}

func (e *testEngine) close() {
	e.registry.Close()
}

// pollUntil polls the session until the status matches want or the deadline
// passes.
func (e *testEngine) pollUntil(ctx context.Context, sessionID string, want Status, deadline time.Duration) (*PollResult, error) {
	stop := time.Now().Add(deadline)
	for {
		result, err := e.poller.Poll(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if result.Status == want {
			return result, nil
		}
		if time.Now().After(stop) {
			return result, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}
