// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/immich-gate/internal/config"
	"github.com/ManuGH/immich-gate/internal/daemon"
	gatelog "github.com/ManuGH/immich-gate/internal/log"
	gatenet "github.com/ManuGH/immich-gate/internal/platform/net"
	"github.com/ManuGH/immich-gate/internal/version"
)

func newServeCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Start the HTTP listener, negotiate the upstream dialect and publish the
proxy routes. A failed initial negotiation stops the process. SIGHUP or
an edit of the config file reloads it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath())
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	// Safe defaults until the config is loaded.
	gatelog.Configure(gatelog.Config{
		Level:   "info",
		Service: "immich-gate",
		Version: version.Version,
	})
	logger := gatelog.WithComponent("daemon")

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).
			Str(gatelog.FieldEvent, "config.load_failed").
			Str(gatelog.FieldPath, configPath).
			Msg("failed to load configuration")
		return fmt.Errorf("load config: %w", err)
	}

	gatelog.Configure(cfg.LogSettings())
	logger = gatelog.WithComponent("daemon")
	logger.Info().
		Str(gatelog.FieldEvent, "daemon.starting").
		Str("version", version.String()).
		Str("listen", cfg.Server.ListenAddr).
		Str(gatelog.FieldBaseURL, gatenet.SanitizeURL(cfg.Immich.URL)).
		Msg("starting immich-gate")

	rt := daemon.Bootstrap(ctx, cfg)
	mgr, err := daemon.NewManager(daemon.Deps{
		Server:      cfg.Server,
		Handler:     rt.Handler,
		AfterListen: rt.Negotiate,
	})
	if err != nil {
		return err
	}
	mgr.RegisterShutdownHook("telemetry", rt.Close)

	holder := config.NewConfigHolder(cfg, loader)
	if err := daemon.NewApp(mgr, holder, rt).Run(ctx); err != nil {
		logger.Error().Err(err).Str(gatelog.FieldEvent, "daemon.failed").Msg("immich-gate stopped with error")
		return err
	}
	logger.Info().Str(gatelog.FieldEvent, "daemon.stopped").Msg("immich-gate stopped")
	return nil
}
