// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package immich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ManuGH/immich-gate/internal/resilience"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound            = errors.New("immich: resource not found")
	ErrUnauthorized        = errors.New("immich: api key rejected")
	ErrUpstreamUnavailable = errors.New("immich: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("immich: internal error (5xx)")
	ErrUnexpectedStatus    = errors.New("immich: unexpected status")
	ErrBadResponse         = errors.New("immich: invalid response format or malformed data")
	ErrTimeout             = errors.New("immich: request timed out")
	ErrTooLarge            = errors.New("immich: response exceeds size limit")
	ErrInvalidQuery        = errors.New("immich: invalid query")
)

// APIError wraps a sentinel with the operation and upstream details.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("immich: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Sentinel, e.Err}
	}
	return []error{e.Sentinel}
}

// statusError maps a non-2xx status to an APIError.
func statusError(op string, status int, body string) *APIError {
	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = ErrUnauthorized
	case status >= 500:
		sentinel = ErrUpstreamError
	default:
		sentinel = ErrUnexpectedStatus
	}
	return &APIError{Sentinel: sentinel, Operation: op, Status: status, Body: body}
}

// transportError classifies an error returned by http.Client.Do.
func transportError(op string, err error) *APIError {
	sentinel := ErrUpstreamUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		sentinel = ErrTimeout
	}
	return &APIError{Sentinel: sentinel, Operation: op, Err: err}
}

// countsAgainstBreaker reports whether err says the upstream is unhealthy.
// Misses, auth failures and bad input prove it is reachable.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamError) ||
		errors.Is(err, ErrTimeout)
}

// resultLabel is the short metrics label for err.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUpstreamError):
		return "upstream_error"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
