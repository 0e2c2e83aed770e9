// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/pm"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show monitor identification and capabilities",
	Long: `Query the manufacturer, model, firmware versions, serial number and the
frame size limits the monitor reports.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *pm.Session) error {
			info, err := s.GetErgInfo(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cfg.Output, info, func(w io.Writer) { printErgInfo(w, info) })
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the monitor's machine state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *pm.Session) error {
			status, err := s.GetStatus(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cfg.Output, status, func(w io.Writer) {
				fmt.Fprintf(w, "Status: %s\n", status.Status)
			})
		})
	},
}

var workoutCmd = &cobra.Command{
	Use:   "workout",
	Short: "Show the current workout type, state and intervals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *pm.Session) error {
			wo, err := s.GetWorkout(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cfg.Output, wo, func(w io.Writer) { printWorkout(w, wo) })
		})
	},
}

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Show machine, stroke, workout and operational states",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *pm.Session) error {
			st, err := s.GetStates(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cfg.Output, st, func(w io.Writer) { printStates(w, st) })
		})
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workoutCmd)
	rootCmd.AddCommand(statesCmd)
}

// withSession opens the configured link, runs fn with a context canceled on
// SIGINT/SIGTERM and closes the session afterwards
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *pm.Session) error) error {
	s, info, err := OpenSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()
	logger.Info("connected", zap.String("link", info))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, s)
}
