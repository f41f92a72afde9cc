package supervisor

import (
	"errors"
	"fmt"
	"time"

	"ai-dashboard-client/internal/model"
)

var (
	ErrNotConnected      = errors.New("not connected")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrRetriesExhausted  = errors.New("reconnect attempts exhausted")
	ErrShutdown          = errors.New("connection shut down")
	ErrClosedBeforeReady = errors.New("connection closed before it opened")
)

// AuthError carries the close code (or handshake status) that rejected
// the credential.
type AuthError struct {
	Code   int
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (code %d): %s", e.Code, e.Reason)
}

func (e *AuthError) Unwrap() error { return ErrAuthFailed }

type EventKind string

const (
	EventStateChanged     EventKind = "CONNECTION_STATE"
	EventAuthFailed       EventKind = "AUTH_FAILED"
	EventRetryScheduled   EventKind = "RETRY_SCHEDULED"
	EventRetriesExhausted EventKind = "RETRIES_EXHAUSTED"
	EventReady            EventKind = "READY"
)

// Event is published to subscribers of its Kind.
type Event struct {
	Kind EventKind

	From model.ConnectionState
	To   model.ConnectionState

	Code   int
	Reason string

	Attempt int
	Delay   time.Duration

	ConnectionID string
}
