// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	gatelog "github.com/ManuGH/immich-gate/internal/log"
	gatenet "github.com/ManuGH/immich-gate/internal/platform/net"
)

const defaultDebounce = 500 * time.Millisecond

// ConfigHolder holds the effective configuration and reloads it from
// file on demand or when the file changes. A reload that fails to load
// or validate keeps the previous configuration.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	debounce time.Duration
	watcher  *fsnotify.Watcher
	done     chan struct{}

	listenMu  sync.RWMutex
	listeners []chan<- AppConfig
}

// NewConfigHolder creates a holder with an already validated config.
func NewConfigHolder(initial AppConfig, loader *Loader) *ConfigHolder {
	return &ConfigHolder{
		current:  initial,
		loader:   loader,
		logger:   gatelog.WithComponent("config"),
		debounce: defaultDebounce,
	}
}

// Get returns the current configuration.
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads, validates and swaps in a new configuration, then
// notifies listeners.
func (h *ConfigHolder) Reload(_ context.Context) error {
	h.logger.Info().Str(gatelog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).
			Str(gatelog.FieldEvent, "config.reload_failed").
			Msg("new configuration rejected, keeping current")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	h.logChanges(prev, next)
	h.notifyListeners(next)
	h.logger.Info().Str(gatelog.FieldEvent, "config.reload_success").Msg("configuration reloaded")
	return nil
}

// StartWatcher watches the config file until ctx ends. The parent
// directory is watched so editors and atomic renames are seen. Without a
// config file it is a no-op.
func (h *ConfigHolder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str(gatelog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (environment-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.watcher = watcher
	h.done = make(chan struct{})
	h.logger.Info().
		Str(gatelog.FieldEvent, "config.watcher_started").
		Str(gatelog.FieldPath, abs).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, abs)
	return nil
}

func (h *ConfigHolder) watchLoop(ctx context.Context, path string) {
	defer close(h.done)
	defer func() { _ = h.watcher.Close() }()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(gatelog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return

		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str(gatelog.FieldEvent, "config.file_changed").
				Str("op", ev.Op.String()).
				Msg("config file changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(h.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				_ = h.Reload(ctx)
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).
				Str(gatelog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Wait blocks until the watcher goroutine has exited.
func (h *ConfigHolder) Wait() {
	if h.done != nil {
		<-h.done
	}
}

// RegisterListener registers ch to receive every successfully reloaded
// config. Sends are non-blocking; size the channel accordingly.
func (h *ConfigHolder) RegisterListener(ch chan<- AppConfig) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *ConfigHolder) notifyListeners(cfg AppConfig) {
	h.listenMu.RLock()
	defer h.listenMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str(gatelog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// ConnectionChanged reports whether b needs a new upstream negotiation
// compared to a.
func ConnectionChanged(a, b AppConfig) bool {
	return a.SessionParams() != b.SessionParams()
}

func (h *ConfigHolder) logChanges(prev, next AppConfig) {
	if prev.Immich.URL != next.Immich.URL {
		h.logger.Info().
			Str("old", gatenet.SanitizeURL(prev.Immich.URL)).
			Str("new", gatenet.SanitizeURL(next.Immich.URL)).
			Msg("config changed: immich.url")
	}
	if prev.Immich.APIKey != next.Immich.APIKey {
		h.logger.Info().Msg("config changed: immich.apiKey")
	}
	if prev.Immich.Timeout != next.Immich.Timeout {
		h.logger.Info().Dur("old", prev.Immich.Timeout).Dur("new", next.Immich.Timeout).
			Msg("config changed: immich.timeout")
	}
	if prev.Proxy.PreferSmaller != next.Proxy.PreferSmaller {
		h.logger.Info().Bool("old", prev.Proxy.PreferSmaller).Bool("new", next.Proxy.PreferSmaller).
			Msg("config changed: proxy.preferSmaller")
	}
	if prev.Server.ListenAddr != next.Server.ListenAddr || !reflect.DeepEqual(prev.Server.AllowedOrigins, next.Server.AllowedOrigins) {
		h.logger.Warn().
			Str(gatelog.FieldEvent, "config.restart_required").
			Msg("server settings changed; they take effect after a restart")
	}
}
