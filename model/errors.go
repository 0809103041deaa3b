package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTransient matches every error worth retrying (rate limits, timeouts,
	// connection failures, 5xx).
	ErrTransient = errors.New("transient model error")
	// ErrFatal matches every error that must not be retried.
	ErrFatal = errors.New("fatal model error")
)

// Error is a classified model call failure.
type Error struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, kind, e.Err)
}

// Unwrap returns the provider error.
func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrTransient or ErrFatal.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient
	case ErrFatal:
		return !e.Transient
	}
	return false
}

// Transient wraps err as a retryable error.
func Transient(provider string, err error) *Error {
	return &Error{Provider: provider, Transient: true, Err: err}
}

// Fatal wraps err as a non-retryable error.
func Fatal(provider string, err error) *Error {
	return &Error{Provider: provider, Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// TransientStatus reports whether an HTTP status code is retryable.
func TransientStatus(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// Classify wraps a transport error that carries no HTTP status. Context
// cancellation is returned unchanged so callers can tell it apart from
// provider failures.
func Classify(provider string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if statusCode != 0 {
		return &Error{Provider: provider, StatusCode: statusCode, Transient: TransientStatus(statusCode), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(provider, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Transient(provider, err)
	}
	return Fatal(provider, err)
}
