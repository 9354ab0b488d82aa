package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound marks unknown sessions or platforms. Wrap it with context:
// fmt.Errorf("session %s: %w", id, ErrNotFound).
var ErrNotFound = errors.New("not found")

// ErrSourceMissing marks a local artifact the exposure bridge cannot
// find. It is fatal to that artifact only, never to the session.
var ErrSourceMissing = errors.New("source file missing")

// ValidationError carries the hard errors a platform's rules produced.
// It is recoverable: the operator can modify the draft and retry.
type ValidationError struct {
	Platform string
	Errors   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %v", e.Platform, e.Errors)
}

// TransportKind classifies a remote posting API failure by what the
// transport reported.
type TransportKind string

const (
	KindAuthFailure       TransportKind = "auth_failure"
	KindBadRequest        TransportKind = "bad_request"
	KindForbidden         TransportKind = "forbidden"
	KindNotFound          TransportKind = "not_found"
	KindMethodUnsupported TransportKind = "method_unsupported"
	KindRateLimited       TransportKind = "rate_limited"
	KindServerError       TransportKind = "server_error"
	KindTimeout           TransportKind = "timeout"
	KindConnection        TransportKind = "connection_error"
	KindUnexpectedStatus  TransportKind = "unexpected_status"
)

// TransportError is a typed remote API failure. Reported per platform
// and never fatal to a multi-platform batch.
type TransportError struct {
	Kind       TransportKind
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure class is worth retrying.
func (e *TransportError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindServerError, KindTimeout, KindConnection:
		return true
	}
	return false
}

// AsTransportError unwraps err into a *TransportError if one is in the
// chain.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
