package authflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/wardmail/accountlink/internal/provider"
)

const defaultCallbackTimeout = 10 * time.Second

// Orchestrator starts device authorization flows against the identity
// provider and wires their eventual outcome into the registry.
type Orchestrator struct {
	registry *Registry
	provider provider.Provider
	enabled  bool

	callbackTimeout time.Duration
	logger          *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCallbackTimeout bounds how long Start waits for the provider to
// allocate a user code.
func WithCallbackTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.callbackTimeout = d
	}
}

// WithOrchestratorLogger sets the orchestrator logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator. enabled is the feature gate: when
// false every Start fails closed with ErrFeatureDisabled.
func NewOrchestrator(registry *Registry, p provider.Provider, enabled bool, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:        registry,
		provider:        p,
		enabled:         enabled,
		callbackTimeout: defaultCallbackTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartReply is returned to the caller once the provider has allocated a
// user code.
type StartReply struct {
	SessionID       string
	UserCode        string
	VerificationURI string
	Message         string
	ExpiresAt       time.Time
}

// Start begins a device authorization flow for the session id. It returns
// once the provider has allocated a user code, leaving the long-running
// completion attached to the registered flow; the outcome only surfaces
// through later polls.
func (o *Orchestrator) Start(ctx context.Context, sessionID, userID string) (*StartReply, error) {
	if !o.enabled {
		return nil, ErrFeatureDisabled
	}
	if o.registry.Get(sessionID) != nil {
		return nil, ErrSessionConflict
	}

	fl := &Flow{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	// The provider attempt must outlive this request: pollers observe its
	// outcome later. It keeps its own cancellation for Cancel and expiry.
	provCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	fl.cancel = cancel

	registered := make(chan error, 1)

	go func() {
		res, err := o.provider.AcquireByDeviceCode(provCtx, func(p provider.Prompt) {
			fl.UserCode = p.UserCode
			fl.VerificationURI = p.VerificationURI
			fl.Message = p.Message
			fl.ExpiresAt = p.ExpiresAt

			// The prompt callback is the only place a registry entry is
			// created.
			registered <- o.registry.Put(fl)
		})
		if err != nil {
			o.logger.Debug("device authorization attempt finished with error",
				slog.String("session_id", sessionID),
				slog.Any("error", err))
		}
		fl.resolve(res, err)
	}()

	select {
	case err := <-registered:
		if err != nil {
			cancel()
			return nil, err
		}
		return &StartReply{
			SessionID:       sessionID,
			UserCode:        fl.UserCode,
			VerificationURI: fl.VerificationURI,
			Message:         fl.Message,
			ExpiresAt:       fl.ExpiresAt,
		}, nil

	case <-time.After(o.callbackTimeout):
		cancel()
		o.logger.Warn("provider did not allocate a device code in time",
			slog.String("session_id", sessionID),
			slog.Duration("timeout", o.callbackTimeout))
		return nil, ErrCallbackTimeout

	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// Cancel rejects an active flow and removes it from the registry. It returns
// false when no live flow exists for the session id, including flows that
// already completed.
func (o *Orchestrator) Cancel(sessionID string) bool {
	fl := o.registry.Get(sessionID)
	if fl == nil {
		return false
	}

	fl.resolve(nil, ErrFlowCanceled)
	if fl.cancel != nil {
		fl.cancel()
	}
	o.registry.Delete(sessionID)

	o.logger.Info("authorization flow cancelled",
		slog.String("session_id", sessionID))
	return true
}
