package authflow

import "errors"

// Common errors that may occur while managing authorization flows
var (
	// ErrFeatureDisabled indicates account linking is turned off by
	// configuration. Always rejected, never retried.
	ErrFeatureDisabled = errors.New("device authorization is disabled")

	// ErrSessionConflict indicates a live flow already exists for the
	// session id. The caller must initiate with a new id.
	ErrSessionConflict = errors.New("session id already in use")

	// ErrCallbackTimeout indicates the provider never allocated a user code
	// within the bounded wait.
	ErrCallbackTimeout = errors.New("timed out waiting for device code")

	// ErrFlowCanceled indicates the flow was cancelled before completion.
	ErrFlowCanceled = errors.New("authorization flow cancelled")

	// ErrFlowExpired indicates the flow passed its expiry before the user
	// completed sign-in.
	ErrFlowExpired = errors.New("authorization flow expired")

	// ErrSlowDown indicates the session is being polled too frequently.
	ErrSlowDown = errors.New("polling too frequently")
)
