package authflow

import (
	"context"
	"sync"
	"time"

	"github.com/wardmail/accountlink/internal/provider"
)

// Completion is the payload returned to pollers once a flow's side effects
// have run: the external account is recorded, tokens are persisted, and an
// application session has been issued.
type Completion struct {
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"provider_account_id"`
	Email             string `json:"email,omitempty"`
	DisplayName       string `json:"display_name,omitempty"`
	SessionToken      string `json:"session_token"`
}

// Completer executes the once-only completion side effect for a finished
// flow: create or update the external account record, persist tokens, and
// issue an application session.
type Completer interface {
	Complete(ctx context.Context, userID string, res *provider.Result) (*Completion, error)
}

// completionEntry memoizes the outcome of completing one flow. All pollers
// that observe the same completed session share the entry, and therefore the
// single execution of its side effect.
type completionEntry struct {
	done       chan struct{}
	completion *Completion
	err        error
	expiresAt  time.Time
}

// completionCache holds completion entries for a short TTL so repeated polls
// after completion stay idempotent.
type completionCache struct {
	mu      sync.Mutex
	entries map[string]*completionEntry
	ttl     time.Duration
}

func newCompletionCache(ttl time.Duration) *completionCache {
	return &completionCache{
		entries: make(map[string]*completionEntry),
		ttl:     ttl,
	}
}

// get returns the live entry for the session id, purging expired entries
// first.
func (c *completionCache) get(sessionID string) *completionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(time.Now())
	return c.entries[sessionID]
}

// getOrCreate returns the entry for the session id, creating it and starting
// run in the background when none exists. Creation happens at most once per
// session id within the TTL; every racing caller gets the same entry.
func (c *completionCache) getOrCreate(sessionID string, run func() (*Completion, error)) (*completionEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(time.Now())

	if e, ok := c.entries[sessionID]; ok {
		return e, false
	}

	e := &completionEntry{
		done:      make(chan struct{}),
		expiresAt: time.Now().Add(c.ttl),
	}
	c.entries[sessionID] = e

	go func() {
		e.completion, e.err = run()
		close(e.done)
	}()

	return e, true
}

// purge evicts expired entries. Eviction is a per-key delete under the cache
// lock.
func (c *completionCache) purge() {
	c.mu.Lock()
	c.purgeLocked(time.Now())
	c.mu.Unlock()
}

func (c *completionCache) purgeLocked(now time.Time) {
	for id, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, id)
		}
	}
}
