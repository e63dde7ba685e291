// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/immich-gate/internal/dialect"
)

var errProbe = errors.New("connection refused")

type step struct {
	version dialect.Version
	err     error
}

// scriptedProber answers probes in order from a script.
type scriptedProber struct {
	mu     sync.Mutex
	script []step
	paths  []string
}

func (p *scriptedProber) ProbeVersion(_ context.Context, _ Connection, path string) (dialect.Version, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	if len(p.script) == 0 {
		return dialect.Version{}, errProbe
	}
	s := p.script[0]
	p.script = p.script[1:]
	return s.version, s.err
}

func (p *scriptedProber) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.paths)
}

func testParams() Params {
	return Params{
		Connection:    Connection{BaseURL: "http://immich.test", APIKey: "secret", Timeout: time.Second},
		PreferSmaller: true,
	}
}

func newTestNegotiator(p Prober) *Negotiator {
	return NewNegotiator(dialect.Default(), p, WithLogger(zerolog.Nop()))
}

func TestNegotiate_FailuresThenSuccessPinsProbedDialect(t *testing.T) {
	reg := dialect.Default()
	for failures := 0; failures < reg.Len(); failures++ {
		want := reg.At(failures)
		t.Run(want.ID, func(t *testing.T) {
			script := make([]step, 0, failures+1)
			for i := 0; i < failures; i++ {
				script = append(script, step{err: errProbe})
			}
			reported := want.MinVersion
			if reported == (dialect.Version{}) {
				reported = dialect.Version{Major: 1, Minor: 94, Patch: 0}
			}
			script = append(script, step{version: reported})

			prober := &scriptedProber{script: script}
			n := newTestNegotiator(prober)

			s, err := n.Negotiate(context.Background(), testParams(), false)
			require.NoError(t, err)
			assert.Equal(t, want.ID, s.Dialect.ID)
			assert.Equal(t, failures+1, prober.calls())
			assert.Equal(t, failures+1, s.Probes)
			assert.Equal(t, StateReady, n.State())
		})
	}
}

func TestNegotiate_ProbesVersionPathOfEachDialect(t *testing.T) {
	prober := &scriptedProber{}
	n := newTestNegotiator(prober)

	_, err := n.Negotiate(context.Background(), testParams(), false)
	require.Error(t, err)
	assert.Equal(t, []string{"/server/version", "/server/version", "/server-info/version", "/server-info/version"}, prober.paths)
}

func TestNegotiate_ReportedVersionDowngrades(t *testing.T) {
	prober := &scriptedProber{script: []step{{version: dialect.Version{Major: 1, Minor: 110, Patch: 2}}}}
	n := newTestNegotiator(prober)

	s, err := n.Negotiate(context.Background(), testParams(), false)
	require.NoError(t, err)
	assert.Equal(t, dialect.V1_106, s.Dialect.ID)
	assert.Equal(t, 1, prober.calls(), "downgrade must not cost extra probes")
}

func TestNegotiate_NewerReportedVersionKeepsProbedDialect(t *testing.T) {
	prober := &scriptedProber{script: []step{
		{err: errProbe},
		{err: errProbe},
		{version: dialect.Version{Major: 1, Minor: 140, Patch: 0}},
	}}
	n := newTestNegotiator(prober)

	s, err := n.Negotiate(context.Background(), testParams(), false)
	require.NoError(t, err)
	assert.Equal(t, dialect.V1_106, s.Dialect.ID)
}

func TestNegotiate_SmartSearchDialectFor1118(t *testing.T) {
	prober := &scriptedProber{script: []step{{version: dialect.Version{Major: 1, Minor: 118, Patch: 0}}}}
	n := newTestNegotiator(prober)

	s, err := n.Negotiate(context.Background(), testParams(), false)
	require.NoError(t, err)
	assert.Equal(t, dialect.V1_118, s.Dialect.ID)
	u, err := s.URL(dialect.OpSearch, "")
	require.NoError(t, err)
	assert.Equal(t, "http://immich.test/api/search/smart", u)
}

func TestNegotiate_AllProbesFailIsFatal(t *testing.T) {
	var buf bytes.Buffer
	prober := &scriptedProber{}
	n := NewNegotiator(dialect.Default(), prober, WithLogger(zerolog.New(&buf)))

	hookRan := false
	n.OnReady(func(*Session) { hookRan = true })

	s, err := n.Negotiate(context.Background(), testParams(), false)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNegotiationFailed)

	var nerr *NegotiationError
	require.ErrorAs(t, err, &nerr)
	assert.Len(t, nerr.Attempts, dialect.Default().Len())
	assert.Equal(t, "http://immich.test/api/server/version", nerr.Attempts[0].URL)
	assert.NotContains(t, err.Error(), "secret")

	assert.Equal(t, StateUninitialized, n.State())
	_, ok := n.Current()
	assert.False(t, ok)
	assert.False(t, hookRan)

	assert.Contains(t, buf.String(), `"event":"negotiation.discovery_failed"`)
	assert.Contains(t, buf.String(), `"dialect":"v1_94"`)
}

func TestNegotiate_IdempotentWithoutForce(t *testing.T) {
	prober := &scriptedProber{script: []step{
		{version: dialect.Version{Major: 1, Minor: 133, Patch: 0}},
		{version: dialect.Version{Major: 1, Minor: 133, Patch: 0}},
	}}
	n := newTestNegotiator(prober)

	var hookCalls atomic.Int32
	n.OnReady(func(*Session) { hookCalls.Add(1) })

	first, err := n.Negotiate(context.Background(), testParams(), false)
	require.NoError(t, err)
	second, err := n.Negotiate(context.Background(), testParams(), false)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, prober.calls())
	assert.Equal(t, int32(1), hookCalls.Load())
}

func TestNegotiate_ForceAndChangedParamsRenegotiate(t *testing.T) {
	v := dialect.Version{Major: 1, Minor: 133, Patch: 0}
	prober := &scriptedProber{script: []step{{version: v}, {version: v}, {version: v}}}
	n := newTestNegotiator(prober)

	var hookCalls atomic.Int32
	n.OnReady(func(*Session) { hookCalls.Add(1) })

	first, err := n.Negotiate(context.Background(), testParams(), false)
	require.NoError(t, err)

	forced, err := n.Negotiate(context.Background(), testParams(), true)
	require.NoError(t, err)
	assert.NotSame(t, first, forced)

	changed := testParams()
	changed.PreferSmaller = false
	third, err := n.Negotiate(context.Background(), changed, false)
	require.NoError(t, err)
	assert.False(t, third.PreferSmaller)

	assert.Equal(t, 3, prober.calls())
	assert.Equal(t, int32(1), hookCalls.Load(), "routes are published once")
}

func TestNegotiate_FailedForcedReinitKeepsSession(t *testing.T) {
	prober := &scriptedProber{script: []step{{version: dialect.Version{Major: 1, Minor: 118, Patch: 3}}}}
	n := newTestNegotiator(prober)

	first, err := n.Negotiate(context.Background(), testParams(), false)
	require.NoError(t, err)

	_, err = n.Negotiate(context.Background(), testParams(), true)
	require.ErrorIs(t, err, ErrNegotiationFailed)

	current, ok := n.Current()
	require.True(t, ok)
	assert.Same(t, first, current)
	assert.Equal(t, StateReady, n.State())
}

func TestNegotiate_SingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	prober := ProberFunc(func(ctx context.Context, _ Connection, _ string) (dialect.Version, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		return dialect.Version{Major: 1, Minor: 133, Patch: 1}, nil
	})
	n := newTestNegotiator(prober)

	const callers = 16
	var wg sync.WaitGroup
	sessions := make([]*Session, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = n.Negotiate(context.Background(), testParams(), false)
		}(i)
	}

	<-entered
	assert.Equal(t, StateNegotiating, n.State())
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
}

func TestNegotiate_CanceledCallerDoesNotFailOthers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	prober := ProberFunc(func(ctx context.Context, _ Connection, _ string) (dialect.Version, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return dialect.Version{}, err
		}
		return dialect.Version{Major: 1, Minor: 133, Patch: 1}, nil
	})
	n := newTestNegotiator(prober)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := n.Negotiate(ctxA, testParams(), false)
		errA <- err
	}()
	<-entered

	type result struct {
		s   *Session
		err error
	}
	resB := make(chan result, 1)
	go func() {
		s, err := n.Negotiate(context.Background(), testParams(), false)
		resB <- result{s, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	// let B join the flight before it completes
	time.Sleep(20 * time.Millisecond)
	close(release)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, dialect.V1_133, b.s.Dialect.ID)
	assert.Equal(t, StateReady, n.State())
	assert.Equal(t, int32(1), calls.Load(), "B shares the flight A started")
}

func TestNegotiate_PerProbeTimeout(t *testing.T) {
	var calls atomic.Int32
	prober := ProberFunc(func(ctx context.Context, _ Connection, _ string) (dialect.Version, error) {
		if calls.Add(1) == 1 {
			_, ok := ctx.Deadline()
			if !ok {
				return dialect.Version{}, errors.New("probe context has no deadline")
			}
			<-ctx.Done()
			return dialect.Version{}, fmt.Errorf("probe: %w", ctx.Err())
		}
		return dialect.Version{Major: 1, Minor: 120, Patch: 0}, nil
	})
	n := newTestNegotiator(prober)

	p := testParams()
	p.Timeout = 20 * time.Millisecond
	s, err := n.Negotiate(context.Background(), p, false)
	require.NoError(t, err)
	assert.Equal(t, dialect.V1_118, s.Dialect.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNegotiate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := newTestNegotiator(&scriptedProber{})
	_, err := n.Negotiate(ctx, testParams(), false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateUninitialized, n.State())
}

func TestOnReady_AfterReadyRunsImmediately(t *testing.T) {
	prober := &scriptedProber{script: []step{{version: dialect.Version{Major: 1, Minor: 133, Patch: 0}}}}
	n := newTestNegotiator(prober)

	_, err := n.Negotiate(context.Background(), testParams(), false)
	require.NoError(t, err)

	var got *Session
	n.OnReady(func(s *Session) { got = s })
	require.NotNil(t, got)
	assert.Equal(t, dialect.V1_133, got.Dialect.ID)
}

func TestConnection_EndpointAndString(t *testing.T) {
	c := Connection{BaseURL: "http://nas:2283/", APIKey: "k3y", Timeout: time.Second}
	assert.Equal(t, "http://nas:2283/api/assets/1", c.Endpoint("/assets/1"))
	assert.NotContains(t, c.String(), "k3y")
}
