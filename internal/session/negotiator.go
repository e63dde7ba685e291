// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/immich-gate/internal/dialect"
	gatelog "github.com/ManuGH/immich-gate/internal/log"
	"github.com/ManuGH/immich-gate/internal/metrics"
	gatenet "github.com/ManuGH/immich-gate/internal/platform/net"
	"github.com/ManuGH/immich-gate/internal/telemetry"
)

// State is the lifecycle state of a Negotiator.
type State int32

const (
	StateUninitialized State = iota
	StateNegotiating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Prober fetches the server version from a version-info path.
// A non-2xx status, a transport error or an unparseable body is an error.
type Prober interface {
	ProbeVersion(ctx context.Context, conn Connection, path string) (dialect.Version, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, conn Connection, path string) (dialect.Version, error)

func (f ProberFunc) ProbeVersion(ctx context.Context, conn Connection, path string) (dialect.Version, error) {
	return f(ctx, conn, path)
}

// Negotiator resolves and pins the upstream dialect.
//
// Transitions: Uninitialized -> Negotiating -> Ready. A forced re-init
// moves Ready -> Negotiating -> Ready; when it fails the previous session
// stays pinned. Hooks registered with OnReady run once, on the first
// transition into Ready.
type Negotiator struct {
	registry *dialect.Registry
	prober   Prober
	logger   zerolog.Logger
	now      func() time.Time

	group   singleflight.Group
	state   atomic.Int32
	current atomic.Pointer[Session]

	readyOnce sync.Once
	hooksMu   sync.Mutex
	hooks     []func(*Session)
	fired     bool
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(n *Negotiator) { n.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Negotiator) { n.logger = l }
}

// NewNegotiator creates an uninitialized negotiator over registry.
func NewNegotiator(registry *dialect.Registry, prober Prober, opts ...Option) *Negotiator {
	n := &Negotiator{
		registry: registry,
		prober:   prober,
		logger:   gatelog.WithComponent("session"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// State returns the current lifecycle state.
func (n *Negotiator) State() State { return State(n.state.Load()) }

// Current returns the pinned session, if any.
func (n *Negotiator) Current() (*Session, bool) {
	s := n.current.Load()
	return s, s != nil
}

// Registry returns the dialect table the negotiator walks.
func (n *Negotiator) Registry() *dialect.Registry { return n.registry }

// OnReady registers fn to run on the first transition into Ready.
// If that transition already happened, fn runs immediately.
func (n *Negotiator) OnReady(fn func(*Session)) {
	n.hooksMu.Lock()
	if !n.fired {
		n.hooks = append(n.hooks, fn)
		n.hooksMu.Unlock()
		return
	}
	n.hooksMu.Unlock()
	fn(n.current.Load())
}

// Negotiate returns the pinned session for p. Without force and with p
// unchanged it returns the existing session without network traffic.
// Concurrent calls share one in-flight negotiation; a caller whose ctx
// ends stops waiting without failing the flight for the others.
func (n *Negotiator) Negotiate(ctx context.Context, p Params, force bool) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !force {
		if s := n.current.Load(); s != nil && s.Params() == p {
			return s, nil
		}
	}

	for {
		ch := n.group.DoChan("negotiate", func() (any, error) {
			if !force {
				if s := n.current.Load(); s != nil && s.Params() == p {
					return s, nil
				}
			}
			// The flight outlives any single caller; probes carry their own timeouts.
			fctx := context.WithoutCancel(ctx)
			if p.Timeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(fctx, p.Timeout*time.Duration(n.registry.Len()))
				defer cancel()
			}
			return n.negotiate(fctx, p)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			return nil, res.Err
		}
		s := res.Val.(*Session)
		// Joined a flight for different parameters; run our own.
		if s.Params() != p {
			continue
		}
		return s, nil
	}
}

func (n *Negotiator) negotiate(ctx context.Context, p Params) (*Session, error) {
	previous := n.current.Load()
	n.state.Store(int32(StateNegotiating))
	start := n.now()

	s, err := n.discover(ctx, p)
	metrics.RecordNegotiation(err == nil, n.now().Sub(start))
	if err != nil {
		if previous != nil {
			n.state.Store(int32(StateReady))
			n.logger.Error().Err(err).
				Str(gatelog.FieldEvent, "negotiation.reinit_failed").
				Str(gatelog.FieldDialect, previous.Dialect.ID).
				Msg("re-negotiation failed, keeping previous dialect")
		} else {
			n.state.Store(int32(StateUninitialized))
		}
		return nil, err
	}

	n.current.Store(s)
	n.state.Store(int32(StateReady))
	metrics.SetDialect(s.Dialect.ID, s.ServerVersion.String())
	n.logger.Info().
		Str(gatelog.FieldEvent, "negotiation.ready").
		Str(gatelog.FieldDialect, s.Dialect.ID).
		Str(gatelog.FieldServerVersion, s.ServerVersion.String()).
		Str(gatelog.FieldBaseURL, gatenet.SanitizeURL(p.BaseURL)).
		Int("probes", s.Probes).
		Msg("upstream dialect pinned")

	n.readyOnce.Do(func() { n.fireHooks(s) })
	return s, nil
}

func (n *Negotiator) fireHooks(s *Session) {
	n.hooksMu.Lock()
	hooks := n.hooks
	n.hooks = nil
	n.fired = true
	n.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(s)
	}
}

// discover walks the registry newest first until a probe succeeds.
func (n *Negotiator) discover(ctx context.Context, p Params) (*Session, error) {
	var attempts []ProbeAttempt
	i := 0
	for {
		d := n.registry.At(i)
		v, url, err := n.probe(ctx, p.Connection, d)
		metrics.RecordVersionProbe(d.ID, err == nil)
		if err == nil {
			return n.pin(i, v, p, len(attempts)+1), nil
		}

		attempts = append(attempts, ProbeAttempt{Dialect: d.ID, URL: url, Err: err})
		n.logger.Warn().Err(err).
			Str(gatelog.FieldEvent, "negotiation.probe_failed").
			Str(gatelog.FieldDialect, d.ID).
			Str(gatelog.FieldCandidateURL, gatenet.SanitizeURL(url)).
			Msg("version probe failed")

		if cerr := ctx.Err(); cerr != nil {
			return nil, &NegotiationError{Attempts: attempts, Cause: cerr}
		}
		next, ok := n.registry.Older(i)
		if !ok {
			break
		}
		i = next
	}

	n.logger.Error().
		Str(gatelog.FieldEvent, "negotiation.discovery_failed").
		Str(gatelog.FieldDialect, n.registry.Oldest().ID).
		Int("probes", len(attempts)).
		Msg("no dialect answered the version probe")
	return nil, &NegotiationError{Attempts: attempts}
}

func (n *Negotiator) probe(ctx context.Context, conn Connection, d dialect.Dialect) (dialect.Version, string, error) {
	t, err := d.Template(dialect.OpVersion)
	if err != nil {
		return dialect.Version{}, "", err
	}
	url := conn.Endpoint(t.Raw())

	ctx, span := telemetry.Tracer("immich-gate/session").Start(ctx, "session.probe")
	defer span.End()
	span.SetAttributes(telemetry.ProbeAttributes(d.ID, "")...)

	if conn.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conn.Timeout)
		defer cancel()
	}
	v, err := n.prober.ProbeVersion(ctx, conn, t.Raw())
	if err == nil && !v.Valid() {
		err = errors.New("version triple out of range")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		return dialect.Version{}, url, err
	}
	span.SetAttributes(telemetry.ProbeAttributes(d.ID, v.String())...)
	return v, url, nil
}

// pin classifies v. The reported version may only move the result to an
// older dialect than the one that answered.
func (n *Negotiator) pin(probed int, v dialect.Version, p Params, probes int) *Session {
	chosen := probed
	classified := n.registry.Classify(v)
	probedID := n.registry.At(probed).ID

	switch {
	case classified > probed:
		chosen = classified
		n.logger.Info().
			Str(gatelog.FieldEvent, "negotiation.downgraded").
			Str(gatelog.FieldProbedDialect, probedID).
			Str(gatelog.FieldDialect, n.registry.At(classified).ID).
			Str(gatelog.FieldServerVersion, v.String()).
			Msg("reported version maps to an older dialect")
	case classified < probed:
		n.logger.Warn().
			Str(gatelog.FieldEvent, "negotiation.version_mismatch").
			Str(gatelog.FieldProbedDialect, probedID).
			Str(gatelog.FieldServerVersion, v.String()).
			Msg("reported version is newer than the dialect that answered, keeping probed dialect")
	}

	return &Session{
		Dialect:       n.registry.At(chosen),
		ServerVersion: v,
		Connection:    p.Connection,
		PreferSmaller: p.PreferSmaller,
		NegotiatedAt:  n.now(),
		Probes:        probes,
	}
}
