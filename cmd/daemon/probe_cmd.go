// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ManuGH/immich-gate/internal/config"
	"github.com/ManuGH/immich-gate/internal/dialect"
	"github.com/ManuGH/immich-gate/internal/immich"
	gatelog "github.com/ManuGH/immich-gate/internal/log"
	"github.com/ManuGH/immich-gate/internal/platform/httpx"
	gatenet "github.com/ManuGH/immich-gate/internal/platform/net"
	"github.com/ManuGH/immich-gate/internal/session"
	"github.com/ManuGH/immich-gate/internal/version"
)

type probeReport struct {
	BaseURL       string         `json:"baseUrl"`
	Dialect       string         `json:"dialect"`
	ServerVersion string         `json:"serverVersion"`
	Probes        int            `json:"probes"`
	Elapsed       string         `json:"elapsed"`
	Albums        []immich.Album `json:"albums,omitempty"`
}

func newProbeCmd(configPath func() string) *cobra.Command {
	var (
		asJSON     bool
		withAlbums bool
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Negotiate the upstream dialect once and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gatelog.Configure(gatelog.Config{
				Level:   "warn",
				Output:  cmd.ErrOrStderr(),
				Service: "immich-gate",
				Version: version.Version,
			})

			cfg, err := config.NewLoader(configPath(), version.Version).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			start := time.Now()
			neg := session.NewNegotiator(dialect.Default(), immich.NewProber(httpx.NewClient(cfg.Immich.Timeout)))
			s, err := neg.Negotiate(cmd.Context(), cfg.SessionParams(), false)
			if err != nil {
				return err
			}

			report := probeReport{
				BaseURL:       gatenet.SanitizeURL(s.Connection.BaseURL),
				Dialect:       s.Dialect.ID,
				ServerVersion: s.ServerVersion.String(),
				Probes:        s.Probes,
				Elapsed:       time.Since(start).Round(time.Millisecond).String(),
			}
			if withAlbums {
				q := immich.NewQueryClient(neg, immich.Options{RPS: -1})
				albums, err := q.Albums(cmd.Context())
				if err != nil {
					return fmt.Errorf("list albums: %w", err)
				}
				report.Albums = albums
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printProbeReport(cmd.OutOrStdout(), report, withAlbums)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&withAlbums, "albums", false, "also list the albums visible to the API key")
	return cmd
}

func printProbeReport(out io.Writer, r probeReport, withAlbums bool) error {
	fmt.Fprintf(out, "Server:   %s\n", r.BaseURL)
	fmt.Fprintf(out, "Version:  %s\n", r.ServerVersion)
	fmt.Fprintf(out, "Dialect:  %s\n", r.Dialect)
	fmt.Fprintf(out, "Probes:   %d (%s)\n", r.Probes, r.Elapsed)
	if !withAlbums {
		return nil
	}

	fmt.Fprintf(out, "\nAlbums (%d):\n", len(r.Albums))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, a := range r.Albums {
		fmt.Fprintf(tw, "  %s\t%s assets\t%s\n", a.Name, humanize.Comma(int64(a.AssetCount)), a.ID)
	}
	return tw.Flush()
}
