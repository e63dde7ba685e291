// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNegotiationFailed means no dialect produced a usable version.
	ErrNegotiationFailed = errors.New("dialect negotiation failed")
	// ErrNotReady is returned when a session is required before one exists.
	ErrNotReady = errors.New("session not negotiated")
)

// ProbeAttempt records one failed version-info probe.
type ProbeAttempt struct {
	Dialect string
	URL     string
	Err     error
}

// NegotiationError lists every failed probe of a negotiation.
type NegotiationError struct {
	Attempts []ProbeAttempt
	// Cause is set when negotiation stopped early, e.g. on cancellation.
	Cause error
}

func (e *NegotiationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrNegotiationFailed.Error())
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Dialect, a.Err)
	}
	return b.String()
}

// Unwrap exposes the sentinel and the early-stop cause.
func (e *NegotiationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrNegotiationFailed, e.Cause}
	}
	return []error{ErrNegotiationFailed}
}
