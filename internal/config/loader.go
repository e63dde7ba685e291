// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	gatelog "github.com/ManuGH/immich-gate/internal/log"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	lookupEnv  func(string) (string, bool)
	environ    func() []string
	logger     zerolog.Logger
}

// NewLoader creates a loader. An empty configPath means env-only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath: configPath,
		version:    version,
		lookupEnv:  os.LookupEnv,
		environ:    os.Environ,
		logger:     gatelog.WithComponent("config"),
	}
}

// Path returns the watched config file, if any.
func (l *Loader) Path() string { return l.configPath }

// Load builds and validates the effective configuration.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	env := newEnvReader(l.lookupEnv)
	env.apply(&cfg)
	if len(env.errs) > 0 {
		return cfg, fmt.Errorf("environment: %w", errors.Join(env.errs...))
	}
	for _, key := range env.unknown(l.environ()) {
		l.logger.Warn().
			Str(gatelog.FieldEvent, "config.unknown_env").
			Str("key", key).
			Msg("ignoring unrecognised environment variable")
	}

	cfg.Version = l.version
	if err := Normalize(&cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path onto cfg with strict parsing: unknown keys and
// trailing documents are errors.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the operator supplies the config path
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}
