// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix is shared by every recognised environment variable.
const EnvPrefix = "IMMICH_GATE_"

const (
	EnvURL                  = EnvPrefix + "URL"
	EnvAPIKey               = EnvPrefix + "API_KEY"
	EnvTimeout              = EnvPrefix + "TIMEOUT"
	EnvPreferSmaller        = EnvPrefix + "PREFER_SMALLER"
	EnvCacheMaxAge          = EnvPrefix + "CACHE_MAX_AGE"
	EnvDisallowedVideoTypes = EnvPrefix + "DISALLOWED_VIDEO_TYPES"
	EnvListen               = EnvPrefix + "LISTEN"
	EnvAllowedOrigins       = EnvPrefix + "ALLOWED_ORIGINS"
	EnvTLSCert              = EnvPrefix + "TLS_CERT"
	EnvTLSKey               = EnvPrefix + "TLS_KEY"
	EnvRateLimitEnabled     = EnvPrefix + "RATE_LIMIT_ENABLED"
	EnvRateLimitRequests    = EnvPrefix + "RATE_LIMIT_REQUESTS"
	EnvQueryRPS             = EnvPrefix + "QUERY_RPS"
	EnvQueryBurst           = EnvPrefix + "QUERY_BURST"
	EnvLogLevel             = EnvPrefix + "LOG_LEVEL"
	EnvLogFormat            = EnvPrefix + "LOG_FORMAT"
	EnvOTelEnabled          = EnvPrefix + "OTEL_ENABLED"
	EnvOTelExporter         = EnvPrefix + "OTEL_EXPORTER"
	EnvOTelEndpoint         = EnvPrefix + "OTEL_ENDPOINT"
	EnvOTelSampling         = EnvPrefix + "OTEL_SAMPLING_RATE"
)

// envReader records which keys were consulted and collects parse errors.
// A malformed value is an error rather than a silent fallback.
type envReader struct {
	lookup   func(string) (string, bool)
	consumed map[string]struct{}
	errs     []error
}

func newEnvReader(lookup func(string) (string, bool)) *envReader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &envReader{lookup: lookup, consumed: make(map[string]struct{})}
}

func (e *envReader) get(key string) (string, bool) {
	e.consumed[key] = struct{}{}
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = i
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

// list splits a comma separated value, dropping empty items.
func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

// apply overlays every recognised variable onto cfg.
func (e *envReader) apply(cfg *AppConfig) {
	e.str(EnvURL, &cfg.Immich.URL)
	e.str(EnvAPIKey, &cfg.Immich.APIKey)
	e.duration(EnvTimeout, &cfg.Immich.Timeout)

	e.boolean(EnvPreferSmaller, &cfg.Proxy.PreferSmaller)
	e.duration(EnvCacheMaxAge, &cfg.Proxy.CacheMaxAge)
	e.list(EnvDisallowedVideoTypes, &cfg.Proxy.DisallowedVideoTypes)

	e.str(EnvListen, &cfg.Server.ListenAddr)
	e.list(EnvAllowedOrigins, &cfg.Server.AllowedOrigins)
	e.str(EnvTLSCert, &cfg.Server.TLSCert)
	e.str(EnvTLSKey, &cfg.Server.TLSKey)
	e.boolean(EnvRateLimitEnabled, &cfg.Server.RateLimit.Enabled)
	e.integer(EnvRateLimitRequests, &cfg.Server.RateLimit.Requests)

	e.float(EnvQueryRPS, &cfg.Query.RPS)
	e.integer(EnvQueryBurst, &cfg.Query.Burst)

	e.str(EnvLogLevel, &cfg.Log.Level)
	e.str(EnvLogFormat, &cfg.Log.Format)

	e.boolean(EnvOTelEnabled, &cfg.Telemetry.Enabled)
	e.str(EnvOTelExporter, &cfg.Telemetry.Exporter)
	e.str(EnvOTelEndpoint, &cfg.Telemetry.Endpoint)
	e.float(EnvOTelSampling, &cfg.Telemetry.SamplingRate)
}

// unknown lists set IMMICH_GATE_* variables that apply never read.
func (e *envReader) unknown(environ []string) []string {
	var out []string
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := e.consumed[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}
