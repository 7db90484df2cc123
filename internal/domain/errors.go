package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for loader operations
var (
	// ErrInvalidRequest indicates a page request with a bad offset or limit
	ErrInvalidRequest = errors.New("invalid page request")

	// ErrEmptyResult indicates a valid filter that matched no records.
	// It is a "no data" state, not a fault.
	ErrEmptyResult = errors.New("no records match the filter")

	// ErrStaleResponse indicates a response for a superseded session
	ErrStaleResponse = errors.New("response belongs to a superseded session")

	// ErrAuthFailed indicates the backend rejected the token
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrUnknownCollection indicates a collection name missing from config
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrIncomplete indicates a session stopped before all records arrived
	ErrIncomplete = errors.New("load stopped before all records arrived")

	// ErrNoProgress indicates a page that claimed more records but added
	// none, so requesting the next offset would repeat it
	ErrNoProgress = errors.New("page added no records")

	// ErrSnapshotNotFound indicates no stored snapshot for a collection/filter
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// TransportError is a network-level failure: connection refused, DNS, timeout.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ServerError is a non-2xx response from the backend.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server error %d", e.StatusCode)
}

// Unwrap maps authentication statuses to ErrAuthFailed.
func (e *ServerError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrAuthFailed
	}
	return nil
}

// Retryable reports whether the status is a transient server failure.
func (e *ServerError) Retryable() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}
