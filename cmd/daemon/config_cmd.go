// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/immich-gate/internal/config"
	"github.com/ManuGH/immich-gate/internal/version"
)

func newConfigCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, validate and inspect configuration files",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd(configPath), newConfigDumpCmd(configPath))
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a documented sample config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteSample(args[0], force); err != nil {
				if errors.Is(err, config.ErrConfigExists) {
					return fmt.Errorf("%w (use --force to overwrite)", err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newConfigValidateCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the config file and environment and report every problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath()
			if _, err := config.NewLoader(path, version.Version).Load(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			target := path
			if target == "" {
				target = "environment"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", target)
			return nil
		},
	}
}

func newConfigDumpCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration with the API key redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader(configPath(), version.Version).Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if cfg.Immich.APIKey != "" {
				cfg.Immich.APIKey = "***"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
