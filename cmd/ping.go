// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ergostat/pkg/csafe"
	"github.com/Thermoquad/ergostat/pkg/pm"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by exchanging status frames",
	Long: `Send CSAFE_GETSTATUS_CMD frames and wait for each response.

Every response is decoded and checked, so this exercises the whole link:
framing, byte stuffing, checksums and the monitor's frame acknowledgement.
Round trip times and a link statistics summary are printed at the end.

This is useful for verifying:
  - Serial cabling and baud rate, or the WebSocket bridge and its credentials
  - The monitor answers with valid frames
  - The frame gap is long enough for the monitor

Exit codes:
  0 - All pings successful
  1 - One or more pings failed
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 5, "Number of pings to send")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", 100*time.Millisecond, "Delay between pings")
}

// rttSummary accumulates round trip times
type rttSummary struct {
	count         int
	min, max, sum time.Duration
}

func (r *rttSummary) add(d time.Duration) {
	if r.count == 0 || d < r.min {
		r.min = d
	}
	if d > r.max {
		r.max = d
	}
	r.sum += d
	r.count++
}

func (r *rttSummary) String() string {
	if r.count == 0 {
		return "rtt min/avg/max = -/-/-"
	}
	avg := r.sum / time.Duration(r.count)
	return fmt.Sprintf("rtt min/avg/max = %v/%v/%v",
		r.min.Round(time.Microsecond), avg.Round(time.Microsecond), r.max.Round(time.Microsecond))
}

func runPing(cmd *cobra.Command, args []string) error {
	s, info, err := OpenSession(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ergostat - Link Ping Test\n")
	fmt.Fprintf(out, "Connection: %s\n", info)
	fmt.Fprintf(out, "Count: %d pings\n\n", pingCount)

	var rtt rttSummary
	failCount := 0
	sent := 0

	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		sent++
		fmt.Fprintf(out, "Ping %d/%d: ", i, pingCount)

		start := time.Now()
		frame, err := s.Exchange(ctx, csafe.CmdGetStatus)
		elapsed := time.Since(start)

		if err != nil {
			failCount++
			printPingFailure(out, err)
		} else {
			rtt.add(elapsed)
			fmt.Fprintf(out, "status=%s previous=%s rtt=%v\n",
				frame.MachineState(), frame.PreviousFrameStatus(), elapsed.Round(time.Microsecond))
		}

		if i < pingCount {
			select {
			case <-ctx.Done():
			case <-time.After(pingInterval):
			}
		}
	}

	stats := s.Stats()
	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	if sent > 0 {
		fmt.Fprintf(out, "%d pings sent, %d responses received, %.0f%% loss\n",
			sent, sent-failCount, float64(failCount)/float64(sent)*100)
	}
	fmt.Fprintf(out, "%s\n\n", rtt.String())
	fmt.Fprint(out, stats.String())

	if failCount > 0 || sent < pingCount {
		os.Exit(1)
	}
	return nil
}

func printPingFailure(w io.Writer, err error) {
	var terr *pm.TransportError
	switch {
	case errors.As(err, &terr):
		fmt.Fprintf(w, "%s FAILED: %v\n", terr.Op, terr.Err)
	case csafe.IsIntegrityError(err):
		fmt.Fprintf(w, "BAD FRAME: %v\n", err)
	default:
		fmt.Fprintf(w, "ERROR: %v\n", err)
	}
}
