package authflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wardmail/accountlink/internal/provider"
)

const (
	// defaultPollWait bounds the non-blocking completion check: poll races
	// the flow's outcome against this timer and reports pending if the
	// timer wins.
	defaultPollWait = 100 * time.Millisecond

	// defaultCompletionTTL is how long completed outcomes stay answerable.
	defaultCompletionTTL = 5 * time.Minute

	// completionTimeout bounds the completion side effect itself.
	completionTimeout = 30 * time.Second
)

// PollLimiter rate-limits poll requests per session. Implementations must
// degrade open: a limiter backend failure should allow the poll.
type PollLimiter interface {
	Allow(ctx context.Context, sessionID string) bool
}

// PollLimiterFunc adapts a function to the PollLimiter interface.
type PollLimiterFunc func(ctx context.Context, sessionID string) bool

// Allow calls f.
func (f PollLimiterFunc) Allow(ctx context.Context, sessionID string) bool {
	return f(ctx, sessionID)
}

// PollResult is the caller-visible answer to a status query.
type PollResult struct {
	Status Status `json:"status"`

	// Error carries a human-readable message when Status is error.
	Error string `json:"error,omitempty"`

	// Completion is set when Status is complete.
	Completion *Completion `json:"completion,omitempty"`
}

// PollCoordinator answers session status queries without blocking and keeps
// completion side effects exactly-once via the completion cache.
type PollCoordinator struct {
	registry    *Registry
	completer   Completer
	completions *completionCache
	limiter     PollLimiter

	pollWait time.Duration
	logger   *slog.Logger
}

// PollOption configures a PollCoordinator.
type PollOption func(*PollCoordinator)

// WithPollWait sets the bounded wait used for the non-blocking completion
// check.
func WithPollWait(d time.Duration) PollOption {
	return func(pc *PollCoordinator) {
		pc.pollWait = d
	}
}

// WithCompletionTTL sets how long completed outcomes are retained.
func WithCompletionTTL(d time.Duration) PollOption {
	return func(pc *PollCoordinator) {
		pc.completions = newCompletionCache(d)
	}
}

// WithPollLimiter installs a per-session poll rate limiter.
func WithPollLimiter(l PollLimiter) PollOption {
	return func(pc *PollCoordinator) {
		pc.limiter = l
	}
}

// WithPollLogger sets the coordinator logger.
func WithPollLogger(logger *slog.Logger) PollOption {
	return func(pc *PollCoordinator) {
		pc.logger = logger
	}
}

// NewPollCoordinator creates a coordinator over the registry and completer.
func NewPollCoordinator(registry *Registry, completer Completer, opts ...PollOption) *PollCoordinator {
	pc := &PollCoordinator{
		registry:    registry,
		completer:   completer,
		completions: newCompletionCache(defaultCompletionTTL),
		pollWait:    defaultPollWait,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// Poll reports the status of a session. Repeated polls for a completed
// session return the identical completion payload without re-running its
// side effects. Unknown sessions report expired.
func (pc *PollCoordinator) Poll(ctx context.Context, sessionID string) (*PollResult, error) {
	pc.completions.purge()

	// Idempotency path: a completed flow answers from the completion cache.
	if e := pc.completions.get(sessionID); e != nil {
		return pc.awaitCompletion(ctx, e)
	}

	if pc.limiter != nil && !pc.limiter.Allow(ctx, sessionID) {
		return nil, ErrSlowDown
	}

	fl := pc.registry.Get(sessionID)
	if fl == nil {
		// The flow may have been completed and deleted by a racing poller
		// between the cache check above and this lookup; the completion
		// entry is always created before the registry delete.
		if e := pc.completions.get(sessionID); e != nil {
			return pc.awaitCompletion(ctx, e)
		}
		// Never registered, expired, or lost on restart.
		return &PollResult{Status: StatusExpired}, nil
	}

	// Non-blocking check: race the flow outcome against a short timer.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(pc.pollWait):
		return &PollResult{Status: StatusPending}, nil
	case <-fl.Done():
	}

	res, err := fl.Result()
	if err != nil {
		return pc.classifyFailure(sessionID, err), nil
	}

	// First poller to observe success creates the completion entry; its
	// future runs the side effect exactly once. Racing pollers share it.
	e, created := pc.completions.getOrCreate(sessionID, func() (*Completion, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
		defer cancel()
		return pc.completer.Complete(runCtx, fl.UserID, res)
	})
	if created {
		pc.logger.Info("authorization flow completed",
			slog.String("session_id", sessionID),
			slog.String("provider_account_id", res.Account.ID))
	}
	pc.registry.Delete(sessionID)

	return pc.awaitCompletion(ctx, e)
}

// classifyFailure maps a resolved flow error onto a poll status.
func (pc *PollCoordinator) classifyFailure(sessionID string, err error) *PollResult {
	switch {
	case errors.Is(err, provider.ErrAuthorizationPending):
		// Not terminal: the flow stays registered until it resolves or
		// expires.
		return &PollResult{Status: StatusPending}

	case errors.Is(err, ErrFlowExpired), errors.Is(err, provider.ErrCodeExpired):
		pc.registry.Delete(sessionID)
		return &PollResult{Status: StatusExpired}

	default:
		pc.registry.Delete(sessionID)
		return &PollResult{Status: StatusError, Error: err.Error()}
	}
}

func (pc *PollCoordinator) awaitCompletion(ctx context.Context, e *completionEntry) (*PollResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
	}

	if e.err != nil {
		return &PollResult{Status: StatusError, Error: e.err.Error()}, nil
	}
	return &PollResult{Status: StatusComplete, Completion: e.completion}, nil
}
