package models

import (
	"errors"
	"fmt"
)

// ErrStaleResponse marks a fetch result that arrived after its key was reset.
// It never leaves the cache store.
var ErrStaleResponse = errors.New("stale response discarded")

// ErrInvalidPageRequest is returned for a negative offset or a non-positive limit.
var ErrInvalidPageRequest = errors.New("invalid page request")

// FetchErrorKind tells the caller whether retrying a failed fetch makes sense.
type FetchErrorKind int

const (
	// FetchTransient covers network failures, timeouts, 408, 429 and 5xx.
	FetchTransient FetchErrorKind = iota
	// FetchTerminal covers validation failures and malformed responses.
	FetchTerminal
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTransient:
		return "transient"
	case FetchTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// FetchError is returned by page fetchers.
type FetchError struct {
	Kind   FetchErrorKind
	Status int // HTTP status, 0 when the request never got a response
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s fetch error: status %d: %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s fetch error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable fetch failure.
func NewTransientError(status int, err error) *FetchError {
	return &FetchError{Kind: FetchTransient, Status: status, Err: err}
}

// NewTerminalError wraps err as a fetch failure that should not be retried.
func NewTerminalError(status int, err error) *FetchError {
	return &FetchError{Kind: FetchTerminal, Status: status, Err: err}
}

// IsTransient reports whether err is a fetch failure worth retrying.
// Errors that are not FetchErrors are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == FetchTransient
	}
	return !errors.Is(err, ErrInvalidPageRequest)
}

// SubscriptionError is reported once per topic when subscribing fails.
type SubscriptionError struct {
	Topic string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe to %s: %v", e.Topic, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
