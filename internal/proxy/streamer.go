// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	gatelog "github.com/ManuGH/immich-gate/internal/log"
	"github.com/ManuGH/immich-gate/internal/metrics"
	"github.com/ManuGH/immich-gate/internal/platform/httpx"
	gatenet "github.com/ManuGH/immich-gate/internal/platform/net"
	"github.com/ManuGH/immich-gate/internal/telemetry"
)

// StatusClientClosedRequest is recorded when the client went away before
// a terminal status could be written.
const StatusClientClosedRequest = 499

const copyBufferSize = 32 << 10

// Outcome classifies one candidate attempt.
type Outcome string

const (
	OutcomeStreamable     Outcome = "streamable"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeRejectedStatus Outcome = "rejected_status"
	OutcomeUnplayable     Outcome = "unplayable"
)

// terminalStatus is the inbound status when the chain ends on o.
func (o Outcome) terminalStatus() int {
	switch o {
	case OutcomeTransportError:
		return http.StatusBadGateway
	case OutcomeUnplayable:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusNotFound
	}
}

// Attempt records one candidate attempt.
type Attempt struct {
	Candidate   Candidate
	Outcome     Outcome
	Status      int
	ContentType string
	Err         error
}

// StreamRequest is the input of one proxied request.
type StreamRequest struct {
	Class   Class
	AssetID string
	Chain   []Candidate
	// Header is sent upstream on every attempt.
	Header http.Header
	APIKey string
	// Timeout bounds connect and response headers of each attempt.
	Timeout time.Duration
	// CacheMaxAge overrides Cache-Control on 2xx responses when > 0.
	CacheMaxAge time.Duration
}

// Result describes how a request terminated.
type Result struct {
	Status   int
	Attempts []Attempt
	Bytes    int64
	// Aborted means the upstream body failed mid-stream after headers were
	// sent; the caller must abort the connection.
	Aborted bool
}

// Streamer walks a candidate chain and streams the first usable body.
type Streamer struct {
	client func(timeout time.Duration) *http.Client
	policy MediaPolicy
	logger zerolog.Logger
	bufs   sync.Pool
}

// NewStreamer returns a streamer using client for every upstream request.
func NewStreamer(client *http.Client, policy MediaPolicy) *Streamer {
	return newStreamer(func(time.Duration) *http.Client { return client }, policy)
}

// NewStreamerWithClients returns a streamer that picks its client by the
// request timeout, so a reloaded timeout applies to the next request.
func NewStreamerWithClients(set *httpx.ClientSet, policy MediaPolicy) *Streamer {
	return newStreamer(set.For, policy)
}

func newStreamer(client func(time.Duration) *http.Client, policy MediaPolicy) *Streamer {
	return &Streamer{
		client: client,
		policy: policy,
		logger: gatelog.WithComponent("proxy"),
		bufs: sync.Pool{New: func() any {
			b := make([]byte, copyBufferSize)
			return &b
		}},
	}
}

// Stream tries each candidate in order and writes the outcome to w.
func (s *Streamer) Stream(w http.ResponseWriter, r *http.Request, req StreamRequest) Result {
	ctx := r.Context()
	logger := gatelog.WithContext(ctx, s.logger).With().
		Str(gatelog.FieldResourceClass, string(req.Class)).
		Str(gatelog.FieldAssetID, req.AssetID).
		Logger()

	var res Result
	last := OutcomeNotFound
	for i, c := range req.Chain {
		a, resp := s.attempt(ctx, c, req)
		res.Attempts = append(res.Attempts, a)
		metrics.RecordProxyAttempt(string(req.Class), string(a.Outcome))
		last = a.Outcome

		if a.Outcome == OutcomeStreamable {
			s.deliver(w, r, resp, req, &res, logger)
			return res
		}

		ev := logger.Warn()
		if a.Outcome == OutcomeNotFound && i < len(req.Chain)-1 {
			ev = logger.Debug()
		}
		ev.Err(a.Err).
			Str(gatelog.FieldEvent, "proxy.attempt_failed").
			Int(gatelog.FieldAttempt, i+1).
			Str(gatelog.FieldOperation, string(c.Operation)).
			Str(gatelog.FieldCandidateURL, gatenet.SanitizeURL(c.URL)).
			Str(gatelog.FieldOutcome, string(a.Outcome)).
			Int(gatelog.FieldStatus, a.Status).
			Str(gatelog.FieldContentType, a.ContentType).
			Msg("upstream candidate failed")

		if ctx.Err() != nil {
			res.Status = StatusClientClosedRequest
			return res
		}
		if a.Outcome == OutcomeRejectedStatus {
			res.Status = a.Status
			writeTerminal(w, a.Status)
			return res
		}
	}

	res.Status = last.terminalStatus()
	writeTerminal(w, res.Status)
	return res
}

// attempt issues one upstream request. resp is non-nil only for
// OutcomeStreamable; every other body is closed here.
func (s *Streamer) attempt(ctx context.Context, c Candidate, req StreamRequest) (Attempt, *http.Response) {
	ctx, span := telemetry.Tracer("immich-gate/proxy").Start(ctx, "proxy.attempt")
	defer span.End()
	span.SetAttributes(telemetry.ProxyAttemptAttributes(string(req.Class), string(c.Operation))...)

	a := Attempt{Candidate: c}
	upReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		a.Outcome, a.Err = OutcomeTransportError, err
		return a, nil
	}
	for k, vv := range req.Header {
		upReq.Header[k] = append([]string(nil), vv...)
	}
	upReq.Header.Set("x-api-key", req.APIKey)

	resp, err := s.client(req.Timeout).Do(upReq)
	if err != nil {
		a.Outcome, a.Err = OutcomeTransportError, err
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return a, nil
	}
	a.Status = resp.StatusCode
	a.ContentType = resp.Header.Get("Content-Type")
	span.SetAttributes(attribute.Int(telemetry.HTTPStatusCodeKey, resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotModified:
		a.Outcome = OutcomeStreamable
		return a, resp
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if req.Class == ClassVideo && !s.policy.Allows(a.ContentType) {
			a.Outcome = OutcomeUnplayable
			break
		}
		a.Outcome = OutcomeStreamable
		return a, resp
	case resp.StatusCode == http.StatusNotFound:
		a.Outcome = OutcomeNotFound
	default:
		a.Outcome = OutcomeRejectedStatus
	}
	_ = resp.Body.Close()
	return a, nil
}

// deliver mirrors status and headers and copies the body.
func (s *Streamer) deliver(w http.ResponseWriter, r *http.Request, resp *http.Response, req StreamRequest, res *Result, logger zerolog.Logger) {
	defer func() { _ = resp.Body.Close() }()

	h := w.Header()
	copyResponseHeaders(h, resp.Header)
	if req.CacheMaxAge > 0 && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		h.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(req.CacheMaxAge/time.Second)))
	}
	w.WriteHeader(resp.StatusCode)
	res.Status = resp.StatusCode

	if !bodyAllowed(resp.StatusCode) {
		return
	}
	_ = http.NewResponseController(w).Flush()

	buf := s.bufs.Get().(*[]byte)
	defer s.bufs.Put(buf)

	src := &trackingReader{r: resp.Body}
	n, err := io.CopyBuffer(w, src, *buf)
	res.Bytes = n
	if err == nil {
		logger.Debug().
			Str(gatelog.FieldEvent, "proxy.streamed").
			Int(gatelog.FieldStatus, resp.StatusCode).
			Str(gatelog.FieldBytes, humanize.Bytes(uint64(n))).
			Msg("asset streamed")
		return
	}

	if src.err != nil && r.Context().Err() == nil {
		res.Aborted = true
		logger.Warn().Err(src.err).
			Str(gatelog.FieldEvent, "proxy.stream_aborted").
			Str(gatelog.FieldBytes, humanize.Bytes(uint64(n))).
			Msg("upstream body failed mid-stream, aborting response")
		return
	}
	logger.Debug().Err(err).
		Str(gatelog.FieldEvent, "proxy.client_gone").
		Str(gatelog.FieldBytes, humanize.Bytes(uint64(n))).
		Msg("client stopped reading")
}

func bodyAllowed(status int) bool {
	return status != http.StatusNotModified && status != http.StatusNoContent && status >= 200
}

func writeTerminal(w http.ResponseWriter, status int) {
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
}

// trackingReader remembers read errors so they can be told apart from
// write errors after io.CopyBuffer returns.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}
