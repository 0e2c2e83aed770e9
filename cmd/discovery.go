// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/csafe"
	"github.com/Thermoquad/ergostat/pkg/pm"
)

var (
	discoveryTimeout time.Duration
	discoveryProbe   bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "List serial ports and find attached monitors",
	Long: `List the serial ports of this machine. With --probe every port is opened
at the configured baud rate and asked for its status and serial number; ports
that answer with a valid CSAFE frame are reported as monitors.

Examples:
  # List ports
  ergostat discovery

  # Probe every port for a monitor
  ergostat discovery --probe --timeout 500ms

Exit codes:
  0 - Discovery successful (at least one port or monitor found)
  1 - Discovery failed (no ports, or no monitor answered a probe)
  2 - Port enumeration error`,
	Args: cobra.NoArgs,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "timeout", time.Second, "Read timeout per probed port")
	discoveryCmd.Flags().BoolVar(&discoveryProbe, "probe", false, "Ask every port for a CSAFE status")
}

// discoveredMonitor is one port that answered a probe
type discoveredMonitor struct {
	Port   string             `json:"port" yaml:"port"`
	Serial string             `json:"serial" yaml:"serial"`
	Status csafe.MachineState `json:"status" yaml:"status"`
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Port enumeration error: %v\n", err)
		os.Exit(2)
	}

	if !discoveryProbe {
		if err := render(out, cfg.Output, ports, func(w io.Writer) {
			fmt.Fprintf(w, "Serial ports: %d\n", len(ports))
			for _, p := range ports {
				fmt.Fprintf(w, "  %s\n", p)
			}
		}); err != nil {
			return err
		}
		if len(ports) == 0 {
			os.Exit(1)
		}
		return nil
	}

	if cfg.Output == "text" {
		fmt.Fprintf(out, "Ergostat - Monitor Discovery\n")
		fmt.Fprintf(out, "Probing %d port(s) at %d baud\n\n", len(ports), cfg.Baud)
	}

	monitors := make([]discoveredMonitor, 0)
	for _, port := range ports {
		m, err := probePort(cmd.Context(), port)
		if err != nil {
			logger.Info("probe failed", zap.String("port", port), zap.Error(err))
			continue
		}
		monitors = append(monitors, *m)
	}

	if err := render(out, cfg.Output, monitors, func(w io.Writer) {
		for _, m := range monitors {
			fmt.Fprintf(w, "Monitor found:\n")
			fmt.Fprintf(w, "  Port:   %s\n", m.Port)
			fmt.Fprintf(w, "  Serial: %s\n", m.Serial)
			fmt.Fprintf(w, "  Status: %s\n", m.Status)
		}
		fmt.Fprintf(w, "\n--- Discovery summary ---\n")
		fmt.Fprintf(w, "Monitors found: %d\n", len(monitors))
		if len(monitors) == 0 {
			fmt.Fprintf(w, "No monitors answered. Check cabling, baud rate and monitor power.\n")
		}
	}); err != nil {
		return err
	}

	if len(monitors) == 0 {
		os.Exit(1)
	}
	return nil
}

func probePort(ctx context.Context, port string) (*discoveredMonitor, error) {
	t, err := OpenSerialTransport(port, cfg.Baud)
	if err != nil {
		return nil, err
	}
	s := pm.NewSession(t,
		pm.WithLogger(logger.Named("pm")),
		pm.WithFrameGap(cfg.Gap),
		pm.WithTimeouts(cfg.WriteTimeout, discoveryTimeout))
	defer s.Close()

	resp, err := s.Send(ctx, csafe.CmdGetSerial)
	if err != nil {
		return nil, err
	}
	serialNo, _ := resp.Text(string(csafe.CmdGetSerial), 0)
	return &discoveredMonitor{
		Port:   port,
		Serial: strings.TrimSpace(serialNo),
		Status: resp.MachineState(),
	}, nil
}
