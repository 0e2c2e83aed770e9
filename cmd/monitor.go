// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/pm"
)

var (
	monitorInterval  time.Duration
	monitorCount     int
	monitorForcePlot bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll and display live workout data",
	Long: `Continuously poll the monitor for elapsed time, distance, stroke rate,
power, pace, calories and heart rate.

With --forceplot each poll also captures the force curve of one complete
stroke, which holds the poll until the stroke finishes.

Failed polls are logged and polling continues.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", time.Second, "Time between polls")
	monitorCmd.Flags().IntVarP(&monitorCount, "count", "n", 0, "Stop after this many polls (0 = run until interrupted)")
	monitorCmd.Flags().BoolVar(&monitorForcePlot, "forceplot", false, "Capture a force curve with every poll")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *pm.Session) error {
		out := cmd.OutOrStdout()
		if cfg.Output == "text" {
			fmt.Fprintf(out, "Ergostat - Live Monitor\n")
			fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")
		}

		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()

		for polls := 0; monitorCount == 0 || polls < monitorCount; polls++ {
			if polls > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}

			m, err := s.GetMonitor(ctx, monitorForcePlot)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, pm.ErrClosed) {
					return nil
				}
				logger.Warn("poll failed", zap.Error(err))
				continue
			}

			if err := render(out, cfg.Output, m, func(w io.Writer) { printMonitorLine(w, time.Now(), m) }); err != nil {
				return err
			}
		}

		if cfg.Output == "text" {
			stats := s.Stats()
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
		}
		return nil
	})
}

// printMonitorLine writes one poll in a single line
func printMonitorLine(w io.Writer, at time.Time, m *pm.Monitor) {
	fmt.Fprintf(w, "[%s] %-8s %9s %8.1f m %3d spm %4d W %s/500m %5.0f cal/hr %3d bpm\n",
		at.Format("15:04:05.000"),
		m.Status,
		formatElapsed(m.Time),
		m.Distance,
		m.SPM,
		m.Power,
		formatPace(m.Pace),
		m.CalHr,
		m.HeartRate,
	)
	if m.ForceCurve != nil {
		fmt.Fprintf(w, "             force %s\n", sparkline(m.ForceCurve))
	}
}
