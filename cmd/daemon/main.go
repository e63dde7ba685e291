// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command immich-gate serves Immich assets to slideshow clients through a
// version-negotiating proxy.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ManuGH/immich-gate/internal/version"
)

const envConfigPath = "IMMICH_GATE_CONFIG"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "immich-gate",
		Short: "Immich asset gateway for photo-frame and slideshow clients",
		Long: `immich-gate negotiates the API dialect of an Immich server and serves
its images and videos under stable proxy routes, falling back across
renditions when the upstream does not have the one asked for.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(envConfigPath),
		"path to config file (YAML); env "+envConfigPath)

	path := func() string { return configPath }
	root.AddCommand(
		newServeCmd(path),
		newProbeCmd(path),
		newConfigCmd(path),
		newHealthcheckCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
