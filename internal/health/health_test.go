// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/immich-gate/internal/dialect"
	"github.com/ManuGH/immich-gate/internal/resilience"
	"github.com/ManuGH/immich-gate/internal/session"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

type fakeNegotiator struct {
	state session.State
	s     *session.Session
}

func (f *fakeNegotiator) State() session.State { return f.state }

func (f *fakeNegotiator) Current() (*session.Session, bool) { return f.s, f.s != nil }

func TestManager_Health(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "ok", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "slow", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		ready    bool
		want     Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded stays ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins over degraded", []Status{StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
		{"degraded after unhealthy", []Status{StatusDegraded, StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("test")
			for i, st := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: st})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.ready, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestServeReady_StatusCodes(t *testing.T) {
	neg := &fakeNegotiator{state: session.StateUninitialized}
	m := NewManager("test")
	m.RegisterChecker(NewDialectChecker(neg))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, "dialect uninitialized", body.Checks["immich_dialect"].Message)

	d, err := dialect.Default().Lookup(dialect.V1_118)
	require.NoError(t, err)
	neg.state = session.StateReady
	neg.s = &session.Session{Dialect: d, ServerVersion: dialect.Version{Major: 1, Minor: 118}}

	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v1_118 (server v1.118.0)", body.Checks["immich_dialect"].Message)
}

func TestServeHealth_AlwaysOK(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(NewRoutesChecker(func() bool { return false }))

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusUnhealthy, body.Status)
	assert.Equal(t, "routes not published", body.Checks["proxy_routes"].Message)
}

func TestDialectChecker_ReNegotiatingStaysHealthy(t *testing.T) {
	d, err := dialect.Default().Lookup(dialect.V1_133)
	require.NoError(t, err)
	c := NewDialectChecker(&fakeNegotiator{
		state: session.StateNegotiating,
		s:     &session.Session{Dialect: d, ServerVersion: dialect.Version{Major: 1, Minor: 140, Patch: 2}},
	})
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Contains(t, res.Message, "re-negotiating")
}

func TestBreakerChecker(t *testing.T) {
	state := resilience.StateClosed
	c := NewBreakerChecker("immich_query", func() resilience.State { return state })
	assert.Equal(t, "immich_query", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	state = resilience.StateOpen
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "circuit open", res.Message)

	state = resilience.StateHalfOpen
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}
