// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"mime"
	"net"
	"strings"

	"github.com/rs/zerolog"

	gatenet "github.com/ManuGH/immich-gate/internal/platform/net"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Normalize canonicalises fields in place; the Immich URL is reduced to
// scheme and host with an IDNA-converted host and no trailing slash.
func Normalize(cfg *AppConfig) error {
	cfg.Immich.URL = strings.TrimSpace(cfg.Immich.URL)
	cfg.Immich.APIKey = strings.TrimSpace(cfg.Immich.APIKey)
	if cfg.Immich.URL != "" {
		u, err := gatenet.ParseBaseURL(cfg.Immich.URL)
		if err != nil {
			return fmt.Errorf("%w: immich.url: %w", ErrInvalidConfig, err)
		}
		cfg.Immich.URL = u
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(cfg.Telemetry.Exporter))
	for i, t := range cfg.Proxy.DisallowedVideoTypes {
		cfg.Proxy.DisallowedVideoTypes[i] = strings.ToLower(strings.TrimSpace(t))
	}
	return nil
}

// Validate checks a normalised configuration and reports every problem
// at once.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	}

	if cfg.Immich.URL == "" {
		add("immich.url", "is required (%s)", EnvURL)
	} else if _, err := gatenet.ParseBaseURL(cfg.Immich.URL); err != nil {
		add("immich.url", "%v", err)
	}
	if cfg.Immich.APIKey == "" {
		add("immich.apiKey", "is required (%s)", EnvAPIKey)
	}
	if cfg.Immich.Timeout <= 0 {
		add("immich.timeout", "must be > 0, got %s", cfg.Immich.Timeout)
	}

	if cfg.Proxy.CacheMaxAge < 0 {
		add("proxy.cacheMaxAge", "must be >= 0, got %s", cfg.Proxy.CacheMaxAge)
	}
	for _, t := range cfg.Proxy.DisallowedVideoTypes {
		if _, _, err := mime.ParseMediaType(t); err != nil || !strings.Contains(t, "/") {
			add("proxy.disallowedVideoTypes", "%q is not a media type", t)
		}
	}

	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
		add("server.listenAddr", "%v", err)
	}
	if (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		add("server.tlsCert", "tlsCert and tlsKey must be set together")
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		if rl.Requests <= 0 {
			add("server.rateLimit.requests", "must be > 0 when enabled, got %d", rl.Requests)
		}
		if rl.Window <= 0 {
			add("server.rateLimit.window", "must be > 0 when enabled, got %s", rl.Window)
		}
	}

	if cfg.Query.Burst < 1 && cfg.Query.RPS > 0 {
		add("query.burst", "must be >= 1, got %d", cfg.Query.Burst)
	}
	if cfg.Query.BreakerThreshold < 1 {
		add("query.breakerThreshold", "must be >= 1, got %d", cfg.Query.BreakerThreshold)
	}
	if cfg.Query.BreakerReset <= 0 {
		add("query.breakerReset", "must be > 0, got %s", cfg.Query.BreakerReset)
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			add("log.level", "%v", err)
		}
	}
	switch cfg.Log.Format {
	case "", "json", "console":
	default:
		add("log.format", "must be json or console, got %q", cfg.Log.Format)
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter", "must be grpc or http, got %q", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			add("telemetry.endpoint", "is required when telemetry is enabled")
		}
	}
	if r := cfg.Telemetry.SamplingRate; r < 0 || r > 1 {
		add("telemetry.samplingRate", "must be within [0, 1], got %g", r)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
