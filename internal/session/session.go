// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session negotiates the Immich API dialect and holds the pinned
// result for the lifetime of the process (or until a forced re-init).
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/immich-gate/internal/dialect"
)

// APIPrefix is the path under the base URL where Immich serves its REST API.
const APIPrefix = "/api"

// Connection holds the upstream connection parameters.
type Connection struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Endpoint joins the base URL, the API prefix and an operation path.
func (c Connection) Endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + APIPrefix + path
}

// String never includes the API key.
func (c Connection) String() string {
	return fmt.Sprintf("%s (timeout %s)", c.BaseURL, c.Timeout)
}

// Params are the inputs of a negotiation. Two calls with equal Params are
// the same negotiation.
type Params struct {
	Connection
	PreferSmaller bool
}

// Session is the immutable result of a successful negotiation.
type Session struct {
	Dialect       dialect.Dialect
	ServerVersion dialect.Version
	Connection    Connection
	PreferSmaller bool
	NegotiatedAt  time.Time
	// Probes is the number of version-info requests the negotiation issued.
	Probes int
}

// Params returns the parameters the session was negotiated with.
func (s *Session) Params() Params {
	return Params{Connection: s.Connection, PreferSmaller: s.PreferSmaller}
}

// URL expands the template for op against the pinned dialect.
func (s *Session) URL(op dialect.Operation, id string) (string, error) {
	t, err := s.Dialect.Template(op)
	if err != nil {
		return "", err
	}
	return s.Connection.Endpoint(t.Expand(id)), nil
}
