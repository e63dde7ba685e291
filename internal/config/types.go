// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the gateway configuration from defaults, a strict
// YAML file and IMMICH_GATE_* environment variables, in that order.
package config

import (
	"time"

	gatelog "github.com/ManuGH/immich-gate/internal/log"
	"github.com/ManuGH/immich-gate/internal/session"
	"github.com/ManuGH/immich-gate/internal/telemetry"
)

// AppConfig is the effective configuration.
type AppConfig struct {
	Immich    ImmichConfig    `yaml:"immich"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Server    ServerConfig    `yaml:"server"`
	Query     QueryConfig     `yaml:"query"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is stamped from the binary, never read from file.
	Version string `yaml:"-"`
}

// ImmichConfig identifies the upstream server.
type ImmichConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProxyConfig tunes the asset proxy.
type ProxyConfig struct {
	PreferSmaller        bool          `yaml:"preferSmaller"`
	CacheMaxAge          time.Duration `yaml:"cacheMaxAge"`
	DisallowedVideoTypes []string      `yaml:"disallowedVideoTypes"`
	RetryAfter           time.Duration `yaml:"retryAfter"`
}

// ServerConfig is the inbound HTTP listener.
type ServerConfig struct {
	ListenAddr      string          `yaml:"listenAddr"`
	AllowedOrigins  []string        `yaml:"allowedOrigins"`
	TLSCert         string          `yaml:"tlsCert"`
	TLSKey          string          `yaml:"tlsKey"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig bounds inbound requests per client IP.
type RateLimitConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Requests  int           `yaml:"requests"`
	Window    time.Duration `yaml:"window"`
	Whitelist []string      `yaml:"whitelist"`
}

// QueryConfig bounds metadata queries towards Immich.
type QueryConfig struct {
	RPS              float64       `yaml:"rps"`
	Burst            int           `yaml:"burst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures OTLP tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Immich: ImmichConfig{
			Timeout: 6 * time.Second,
		},
		Proxy: ProxyConfig{
			PreferSmaller: true,
			CacheMaxAge:   10 * time.Minute,
			RetryAfter:    5 * time.Second,
		},
		Server: ServerConfig{
			ListenAddr:      ":8089",
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:  true,
				Requests: 1200,
				Window:   time.Minute,
			},
		},
		Query: QueryConfig{
			RPS:              10,
			Burst:            20,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

// SessionParams is the negotiation input derived from the config.
func (c AppConfig) SessionParams() session.Params {
	return session.Params{
		Connection: session.Connection{
			BaseURL: c.Immich.URL,
			APIKey:  c.Immich.APIKey,
			Timeout: c.Immich.Timeout,
		},
		PreferSmaller: c.Proxy.PreferSmaller,
	}
}

// LogSettings maps the log section onto the logger configuration.
func (c AppConfig) LogSettings() gatelog.Config {
	return gatelog.Config{
		Level:   c.Log.Level,
		Format:  c.Log.Format,
		Service: "immich-gate",
		Version: c.Version,
	}
}

// TelemetrySettings maps the telemetry section onto the tracer provider
// configuration.
func (c AppConfig) TelemetrySettings() telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "immich-gate",
		ServiceVersion: c.Version,
		Environment:    c.Telemetry.Environment,
		ExporterType:   c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SamplingRate:   c.Telemetry.SamplingRate,
	}
}
