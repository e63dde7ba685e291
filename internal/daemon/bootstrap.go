// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the gateway from its configuration and owns the
// runtime lifecycle.
package daemon

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/ManuGH/immich-gate/internal/api"
	"github.com/ManuGH/immich-gate/internal/api/middleware"
	"github.com/ManuGH/immich-gate/internal/config"
	"github.com/ManuGH/immich-gate/internal/dialect"
	"github.com/ManuGH/immich-gate/internal/health"
	"github.com/ManuGH/immich-gate/internal/immich"
	gatelog "github.com/ManuGH/immich-gate/internal/log"
	"github.com/ManuGH/immich-gate/internal/platform/httpx"
	"github.com/ManuGH/immich-gate/internal/proxy"
	"github.com/ManuGH/immich-gate/internal/session"
	"github.com/ManuGH/immich-gate/internal/telemetry"
)

const serviceName = "immich-gate"

// Runtime is the wired gateway: negotiator, proxy, queries, health and
// the inbound handler built on top of them.
type Runtime struct {
	Negotiator *session.Negotiator
	Router     *proxy.Router
	Queries    *immich.QueryClient
	Health     *health.Manager
	Handler    http.Handler
	// Telemetry is nil when the provider could not be built.
	Telemetry *telemetry.Provider

	params atomic.Pointer[session.Params]
}

// Bootstrap builds the runtime for cfg. Nothing talks to Immich yet; the
// proxy routes are published by the first successful negotiation.
func Bootstrap(ctx context.Context, cfg config.AppConfig) *Runtime {
	logger := gatelog.WithComponent("daemon")

	rt := &Runtime{}
	rt.SetParams(cfg.SessionParams())

	tp, err := telemetry.NewProvider(ctx, cfg.TelemetrySettings())
	if err != nil {
		logger.Warn().Err(err).
			Str(gatelog.FieldEvent, "telemetry.init_failed").
			Msg("telemetry initialization failed, continuing without tracing")
	}
	rt.Telemetry = tp

	// Both clients follow the pinned connection's timeout across reloads.
	rt.Negotiator = session.NewNegotiator(dialect.Default(),
		immich.NewProberWithClients(httpx.NewClientSet(httpx.NewClient)))

	streamer := proxy.NewStreamerWithClients(
		httpx.NewClientSet(httpx.NewStreamingClient),
		proxy.NewMediaPolicy(cfg.Proxy.DisallowedVideoTypes),
	)
	rt.Router = proxy.NewRouter(streamer, rt.Negotiator, proxy.RouterOptions{
		CacheMaxAge: cfg.Proxy.CacheMaxAge,
		RetryAfter:  cfg.Proxy.RetryAfter,
	})
	rt.Negotiator.OnReady(rt.Router.Register)

	rt.Queries = immich.NewQueryClient(rt.Negotiator, immich.Options{
		RPS:              cfg.Query.RPS,
		Burst:            cfg.Query.Burst,
		BreakerThreshold: cfg.Query.BreakerThreshold,
		BreakerReset:     cfg.Query.BreakerReset,
	})

	rt.Health = health.NewManager(cfg.Version)
	rt.Health.RegisterChecker(health.NewDialectChecker(rt.Negotiator))
	rt.Health.RegisterChecker(health.NewRoutesChecker(rt.Router.Ready))
	rt.Health.RegisterChecker(health.NewBreakerChecker("immich_query_breaker", rt.Queries.BreakerState))

	rt.Handler = api.NewHandler(api.Deps{
		Negotiator: rt.Negotiator,
		Params:     rt.Params,
		Proxy:      rt.Router,
		Health:     rt.Health,
		Stack:      stackConfig(cfg),
	})
	return rt
}

func stackConfig(cfg config.AppConfig) middleware.StackConfig {
	sc := middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        cfg.Server.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
	}
	if cfg.Telemetry.Enabled {
		sc.TracingService = serviceName
	}
	if cfg.Server.RateLimit.Enabled {
		sc.RateLimitRequests = cfg.Server.RateLimit.Requests
		sc.RateLimitWindow = cfg.Server.RateLimit.Window
		sc.RateLimitWhitelist = cfg.Server.RateLimit.Whitelist
	}
	return sc
}

// Params returns the current negotiation input.
func (rt *Runtime) Params() session.Params { return *rt.params.Load() }

// SetParams replaces the negotiation input used by later refreshes.
func (rt *Runtime) SetParams(p session.Params) { rt.params.Store(&p) }

// Negotiate runs the initial negotiation. Failure is fatal for serve.
func (rt *Runtime) Negotiate(ctx context.Context) error {
	_, err := rt.Negotiator.Negotiate(ctx, rt.Params(), false)
	return err
}

// Close flushes telemetry.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt.Telemetry == nil {
		return nil
	}
	return rt.Telemetry.Shutdown(ctx)
}
