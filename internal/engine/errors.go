package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrRepositoryUnavailable is matched by *UnavailableError.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	// ErrInvalidIntent rejects an intent that does not fit the displayed state.
	ErrInvalidIntent = errors.New("invalid intent")
	// ErrIntentInFlight rejects an intent whose target is still being processed.
	ErrIntentInFlight = errors.New("intent in flight")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("engine closed")
)

// UnavailableError reports that the repository path is no longer a usable
// repository. The engine keeps serving the last good snapshot.
type UnavailableError struct {
	Repo string
	Err  error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrRepositoryUnavailable, e.Repo)
	}
	return fmt.Sprintf("%s: %s: %v", ErrRepositoryUnavailable, e.Repo, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRepositoryUnavailable}
	}
	return []error{ErrRepositoryUnavailable, e.Err}
}

// IntentError is returned synchronously by Submit. Err is either
// ErrInvalidIntent or ErrIntentInFlight.
type IntentError struct {
	Intent Intent
	Reason string
	Err    error
}

func (e *IntentError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s", e.Intent, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Intent, e.Err, e.Reason)
}

func (e *IntentError) Unwrap() error {
	return e.Err
}

func invalid(in Intent, format string, args ...any) *IntentError {
	return &IntentError{Intent: in, Reason: fmt.Sprintf(format, args...), Err: ErrInvalidIntent}
}

func inFlight(in, holder Intent) *IntentError {
	return &IntentError{Intent: in, Reason: "waiting for " + holder.String(), Err: ErrIntentInFlight}
}

// OperationError carries a backend failure for an intent that was accepted
// and then rolled back.
type OperationError struct {
	Intent Intent
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Intent, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
