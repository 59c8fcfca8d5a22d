package authflow

import (
	"log/slog"
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// Registry is the in-process map of in-flight authorization flows keyed by
// session id. It is a process-local cache, not a source of truth: entries may
// be lost on restart, in which case the persisted token store is the recovery
// path.
//
// All operations are safe under concurrent pollers and the periodic sweep.
type Registry struct {
	mu    sync.Mutex
	flows map[string]*Flow

	sweepInterval time.Duration
	logger        *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSweepInterval sets how often the background sweep evicts expired flows.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.sweepInterval = d
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry and starts its background sweep. Callers own
// teardown via Close.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		flows:         make(map[string]*Flow),
		sweepInterval: defaultSweepInterval,
		logger:        slog.Default(),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.sweepLoop()
	return r
}

// Close stops the background sweep. Idempotent.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// Put registers a flow. It fails with ErrSessionConflict if a live flow
// already exists for the session id; an expired leftover is replaced.
func (r *Registry) Put(flow *Flow) error {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.flows[flow.SessionID]; ok && !existing.Expired(now) {
		return ErrSessionConflict
	}
	r.flows[flow.SessionID] = flow
	return nil
}

// Get returns the flow for the session id, or nil if none is registered.
// Expired entries are evicted opportunistically and reported as missing.
func (r *Registry) Get(sessionID string) *Flow {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.flows[sessionID]
	if !ok {
		return nil
	}
	if flow.Expired(now) {
		r.evictLocked(sessionID, flow)
		return nil
	}
	return flow
}

// Delete removes the flow for the session id. Idempotent.
func (r *Registry) Delete(sessionID string) {
	r.mu.Lock()
	delete(r.flows, sessionID)
	r.mu.Unlock()
}

// Len returns the number of registered flows after sweeping expired entries.
func (r *Registry) Len() int {
	r.sweepExpired()

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// sweepExpired evicts every flow whose expiry has passed. Eviction is a
// per-key delete under the registry lock so it cannot race a poller that is
// mid-way through completing an entry.
func (r *Registry) sweepExpired() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, flow := range r.flows {
		if flow.Expired(now) {
			r.evictLocked(id, flow)
		}
	}
}

// evictLocked removes an expired flow and resolves its slot so that any
// poller already waiting on it observes expiry instead of blocking.
func (r *Registry) evictLocked(sessionID string, flow *Flow) {
	delete(r.flows, sessionID)
	flow.resolve(nil, ErrFlowExpired)
	if flow.cancel != nil {
		flow.cancel()
	}
	r.logger.Debug("evicted expired authorization flow",
		slog.String("session_id", sessionID))
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweepExpired()
		}
	}
}
