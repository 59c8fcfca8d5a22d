// Package authflow implements the device-authorization account linking
// engine: an in-process registry of in-flight authorization flows, an
// orchestrator that drives the provider's device code grant, and a poll
// coordinator that answers status queries without blocking while keeping
// completion side effects exactly-once.
package authflow

import (
	"context"
	"sync"
	"time"

	"github.com/wardmail/accountlink/internal/provider"
)

// Status is the caller-visible state of an authorization flow.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusExpired  Status = "expired"
	StatusError    Status = "error"
)

// Flow tracks one in-progress device authorization attempt.
type Flow struct {
	SessionID       string
	UserID          string
	UserCode        string
	VerificationURI string
	Message         string
	CreatedAt       time.Time
	ExpiresAt       time.Time

	slot   resultSlot
	cancel context.CancelFunc
}

// Expired reports whether the flow has passed its expiry.
func (f *Flow) Expired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

// Done returns a channel closed once the flow's result slot is filled.
func (f *Flow) Done() <-chan struct{} {
	return f.slot.wait()
}

// Result returns the flow outcome. It must only be called after Done is
// closed.
func (f *Flow) Result() (*provider.Result, error) {
	return f.slot.result()
}

// resolve fills the result slot. Only the first call takes effect.
func (f *Flow) resolve(res *provider.Result, err error) {
	f.slot.resolve(res, err)
}

// resultSlot is a single-assignment outcome holder. The zero value is usable:
// the slot starts unset and resolves exactly once, after which the done
// channel is closed and res/err are immutable.
type resultSlot struct {
	mu   sync.Mutex
	once sync.Once
	done chan struct{}
	res  *provider.Result
	err  error
}

func (s *resultSlot) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

func (s *resultSlot) resolve(res *provider.Result, err error) {
	s.once.Do(func() {
		s.mu.Lock()
		if s.done == nil {
			s.done = make(chan struct{})
		}
		s.res = res
		s.err = err
		close(s.done)
		s.mu.Unlock()
	})
}

func (s *resultSlot) result() (*provider.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res, s.err
}
