// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package immich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/immich-gate/internal/dialect"
	"github.com/ManuGH/immich-gate/internal/platform/httpx"
	"github.com/ManuGH/immich-gate/internal/session"
)

const maxVersionBodyBytes = 4 << 10

// Prober implements session.Prober over HTTP. It bypasses the query
// limiter and breaker: negotiation has its own per-probe timeout and
// walks the dialect chain on failure.
type Prober struct {
	client func(timeout time.Duration) *http.Client
}

// NewProber returns a prober bound to hc. A nil client selects a client
// sized by each connection's timeout.
func NewProber(hc *http.Client) *Prober {
	if hc == nil {
		return NewProberWithClients(httpx.NewClientSet(httpx.NewClient))
	}
	return &Prober{client: func(time.Duration) *http.Client { return hc }}
}

// NewProberWithClients returns a prober that picks its client by the
// connection timeout, so a reloaded timeout applies to the next probe.
func NewProberWithClients(set *httpx.ClientSet) *Prober {
	return &Prober{client: set.For}
}

type versionBody struct {
	Major *int `json:"major"`
	Minor *int `json:"minor"`
	Patch *int `json:"patch"`
}

// ProbeVersion fetches conn.Endpoint(path) and parses {major,minor,patch}.
func (p *Prober) ProbeVersion(ctx context.Context, conn session.Connection, path string) (dialect.Version, error) {
	const op = "version"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, conn.Endpoint(path), nil)
	if err != nil {
		return dialect.Version{}, &APIError{Sentinel: ErrInvalidQuery, Operation: op, Err: err}
	}
	req.Header.Set(HeaderAPIKey, conn.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client(conn.Timeout).Do(req)
	if err != nil {
		return dialect.Version{}, transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dialect.Version{}, statusError(op, resp.StatusCode, "")
	}

	var body versionBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVersionBodyBytes)).Decode(&body); err != nil {
		return dialect.Version{}, &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	if body.Major == nil || body.Minor == nil || body.Patch == nil {
		return dialect.Version{}, &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode,
			Err: fmt.Errorf("missing major/minor/patch")}
	}
	return dialect.Version{Major: *body.Major, Minor: *body.Minor, Patch: *body.Patch}, nil
}

var _ session.Prober = (*Prober)(nil)
