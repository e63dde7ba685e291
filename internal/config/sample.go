// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/renameio/v2"
)

// ErrConfigExists is returned by WriteSample when the target exists and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// SampleYAML documents every key with its default.
const SampleYAML = `# immich-gate configuration
# Environment variables (IMMICH_GATE_*) override values from this file.

immich:
  url: http://immich.local:2283      # IMMICH_GATE_URL
  apiKey: ""                         # IMMICH_GATE_API_KEY
  timeout: 6s                        # per-request upstream timeout

proxy:
  preferSmaller: true                # thumbnail before preview for images
  cacheMaxAge: 10m                   # Cache-Control max-age on streamed assets
  retryAfter: 5s                     # Retry-After while the dialect is unknown
  disallowedVideoTypes:              # empty list allows every video type
    - video/x-matroska
    - video/x-msvideo
    - video/avi
    - video/x-ms-wmv
    - video/x-flv

server:
  listenAddr: ":8089"
  allowedOrigins: []
  tlsCert: ""
  tlsKey: ""
  shutdownTimeout: 15s
  rateLimit:
    enabled: true
    requests: 1200
    window: 1m
    whitelist: []

query:
  rps: 10
  burst: 20
  breakerThreshold: 5
  breakerReset: 30s

log:
  level: info
  format: json

telemetry:
  enabled: false
  exporter: grpc
  endpoint: localhost:4317
  insecure: false
  samplingRate: 1.0
  environment: production
`

// WriteSample atomically writes SampleYAML to path.
func WriteSample(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := renameio.WriteFile(path, []byte(SampleYAML), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
