// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package immich talks JSON to an Immich server: the version probe used
// during negotiation and the read-only queries the display client needs.
package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	gatelog "github.com/ManuGH/immich-gate/internal/log"
	"github.com/ManuGH/immich-gate/internal/metrics"
	gatenet "github.com/ManuGH/immich-gate/internal/platform/net"
	"github.com/ManuGH/immich-gate/internal/platform/httpx"
	"github.com/ManuGH/immich-gate/internal/resilience"
	"github.com/ManuGH/immich-gate/internal/session"
)

// HeaderAPIKey carries the Immich API key.
const HeaderAPIKey = "x-api-key"

const (
	defaultQueryRPS         = 10
	defaultQueryBurst       = 20
	defaultMaxInlineBytes   = 8 << 20
	maxErrorBodyBytes       = 512
	defaultBreakerThreshold = 5
	defaultBreakerReset     = 30 * time.Second
)

// Options tunes the query client. Zero values select defaults.
type Options struct {
	// RPS and Burst bound upstream JSON queries. RPS < 0 disables limiting.
	RPS   float64
	Burst int

	BreakerThreshold int
	BreakerReset     time.Duration

	// MaxInlineBytes caps InlineAsset downloads.
	MaxInlineBytes int64

	// Location anchors calendar arithmetic (memory lane, anniversaries).
	Location *time.Location

	// HTTPClient overrides the client built from the connection timeout.
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.RPS == 0 {
		o.RPS = defaultQueryRPS
	}
	if o.Burst <= 0 {
		o.Burst = defaultQueryBurst
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = defaultBreakerThreshold
	}
	if o.BreakerReset <= 0 {
		o.BreakerReset = defaultBreakerReset
	}
	if o.MaxInlineBytes <= 0 {
		o.MaxInlineBytes = defaultMaxInlineBytes
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Client issues JSON requests against one upstream connection.
type Client struct {
	conn    session.Connection
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	opts    Options
	logger  zerolog.Logger
}

// NewClient builds a client for conn.
func NewClient(conn session.Connection, opts Options) *Client {
	opts = opts.withDefaults()

	hc := opts.HTTPClient
	if hc == nil {
		hc = httpx.NewClient(conn.Timeout)
	}
	limit := rate.Limit(opts.RPS)
	if opts.RPS < 0 {
		limit = rate.Inf
	}

	return &Client{
		conn:    conn,
		http:    hc,
		limiter: rate.NewLimiter(limit, opts.Burst),
		breaker: resilience.NewCircuitBreaker("immich_query", opts.BreakerThreshold, opts.BreakerReset,
			resilience.WithFailurePredicate(countsAgainstBreaker)),
		opts:   opts,
		logger: gatelog.WithComponent("immich"),
	}
}

// Connection returns the connection the client was built for.
func (c *Client) Connection() session.Connection { return c.conn }

func (c *Client) newRequest(ctx context.Context, method, rawURL string, query url.Values, body any) (*http.Request, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", ErrInvalidQuery, err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set(HeaderAPIKey, c.conn.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// getJSON issues GET rawURL?query and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, op, rawURL string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, query, nil)
	if err != nil {
		return &APIError{Sentinel: ErrInvalidQuery, Operation: op, Err: err}
	}
	return c.do(op, req, func(resp *http.Response) error { return decode(op, resp, out) })
}

// postJSON posts body as JSON and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, op, rawURL string, body, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, rawURL, nil, body)
	if err != nil {
		return &APIError{Sentinel: ErrInvalidQuery, Operation: op, Err: err}
	}
	return c.do(op, req, func(resp *http.Response) error { return decode(op, resp, out) })
}

// getBinary downloads at most limit bytes and returns them with the
// response content type.
func (c *Client) getBinary(ctx context.Context, op, rawURL string, limit int64) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, "", &APIError{Sentinel: ErrInvalidQuery, Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/octet-stream")

	var (
		data        []byte
		contentType string
	)
	err = c.do(op, req, func(resp *http.Response) error {
		buf, rerr := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if rerr != nil {
			return transportError(op, rerr)
		}
		if int64(len(buf)) > limit {
			return &APIError{Sentinel: ErrTooLarge, Operation: op, Err: fmt.Errorf("more than %d bytes", limit)}
		}
		data, contentType = buf, resp.Header.Get("Content-Type")
		return nil
	})
	return data, contentType, err
}

// do runs req through the limiter and the breaker. handle is called for
// 2xx responses only; the body is always closed.
func (c *Client) do(op string, req *http.Request, handle func(*http.Response) error) error {
	ctx := req.Context()
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Sentinel: ErrTimeout, Operation: op, Err: err}
	}

	err := c.breaker.Execute(func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			return transportError(op, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			return statusError(op, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return handle(resp)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = &APIError{Sentinel: ErrUpstreamUnavailable, Operation: op, Err: err}
	}

	metrics.RecordUpstreamQuery(op, resultLabel(err), time.Since(start))
	if err != nil {
		c.logger.Warn().Err(err).
			Str(gatelog.FieldEvent, "immich.query_failed").
			Str(gatelog.FieldOperation, op).
			Str(gatelog.FieldCandidateURL, gatenet.SanitizeURL(req.URL.String())).
			Msg("upstream query failed")
	}
	return err
}

func decode(op string, resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}
