// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api assembles the inbound HTTP surface: the asset proxy mounts,
// health probes, Prometheus metrics and the session endpoints.
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/immich-gate/internal/api/middleware"
	"github.com/ManuGH/immich-gate/internal/health"
	"github.com/ManuGH/immich-gate/internal/proxy"
	"github.com/ManuGH/immich-gate/internal/session"
)

// Negotiator is the part of session.Negotiator the API needs.
type Negotiator interface {
	State() session.State
	Current() (*session.Session, bool)
	Negotiate(ctx context.Context, p session.Params, force bool) (*session.Session, error)
}

// Deps are the collaborators wired into the router.
type Deps struct {
	Negotiator Negotiator
	// Params yields the current negotiation input; it follows config reloads.
	Params func() session.Params
	// Proxy serves the asset routes (a *proxy.Router in production).
	Proxy  http.Handler
	Health *health.Manager
	// Metrics overrides the /metrics handler; nil selects promhttp.Handler.
	Metrics http.Handler
	Stack   middleware.StackConfig
}

// NewHandler builds the root router.
func NewHandler(d Deps) http.Handler {
	r := middleware.NewRouter(d.Stack)

	if d.Health != nil {
		r.Get("/healthz", d.Health.ServeHealth)
		r.Get("/readyz", d.Health.ServeReady)
	}

	metricsHandler := d.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	s := &sessionHandlers{negotiator: d.Negotiator, params: d.Params}
	r.Get("/api/session", s.handleGet)
	r.With(middleware.RefreshRateLimit()).Post("/api/session/refresh", s.handleRefresh)

	if d.Proxy != nil {
		for _, p := range proxy.Prefixes {
			r.Handle(p+"*", d.Proxy)
		}
	}
	return r
}
