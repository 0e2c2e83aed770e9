// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/pm"
)

var (
	cfgFile string

	// Set by the root PersistentPreRunE before any subcommand runs
	cfg    *Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "ergostat",
	Short: "Concept2 Performance Monitor CSAFE Tool",
	Long: `Ergostat - A CLI tool for talking CSAFE to Concept2 performance monitors.

Provides commands for querying monitor data, programming workouts, sending raw
CSAFE commands, live monitoring and recording or replaying link captures.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]
  Simulated: --simulate

For WebSocket authentication, the password is read from the ERGOSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Every flag can also be set in ergostat.yaml (current directory or
$HOME/.config/ergostat) or through ERGOSTAT_* environment variables.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = c
		logger = newLogger(c.Log, cmd.ErrOrStderr())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default ergostat.yaml)")

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Simulation and capture
	flags.Bool("simulate", false, "Talk to a simulated monitor instead of hardware")
	flags.String("record", "", "Record every exchange to a capture file")

	// Link timing
	flags.Duration("gap", pm.DefaultFrameGap, "Minimum gap between frames")
	flags.Duration("write-timeout", pm.DefaultWriteTimeout, "Report write timeout")
	flags.Duration("read-timeout", pm.DefaultReadTimeout, "Report read timeout")

	// Output and logging
	flags.StringP("output", "o", "text", "Output format: text, json or yaml")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log encoding: console or json")
	flags.String("log-file", "", "Also write logs to a rotating file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
