// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ergostat/pkg/csafe"
	"github.com/Thermoquad/ergostat/pkg/pm"
)

var sendShowRequest bool

var sendCmd = &cobra.Command{
	Use:   "send COMMAND [ARG...] [COMMAND [ARG...]...]",
	Short: "Send raw CSAFE commands and print the decoded response",
	Long: `Encode the given commands and arguments into a single frame, exchange it
with the monitor and print every decoded response.

Command names may be given in full (CSAFE_GETSTATUS_CMD, CSAFE_PM_GET_WORKTIME)
or without the CSAFE_ prefix and _CMD suffix (GETSTATUS, PM_GET_WORKTIME), in
any case. Arguments are integers in decimal, hex (0x..) or binary (0b..).

Consecutive PM commands sharing a wrapper are merged into one wrapper block.`,
	Example: `  ergostat send GETSTATUS GETPOWER PM_GET_WORKTIME
  ergostat send SETTWORK 0 20 0 SETPROGRAM 0 0 GOINUSE`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendShowRequest, "show-request", false, "Print the encoded request report")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	tokens, err := parseTokens(args)
	if err != nil {
		return err
	}

	// Encode up front so construction errors are reported without a link
	report, err := csafe.NewEncoder().Encode(tokens...)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *pm.Session) error {
		out := cmd.OutOrStdout()
		if sendShowRequest && cfg.Output == "text" {
			fmt.Fprintf(out, "request:  %s\n", csafe.FormatHex(report.Data[:1+report.FrameLength]))
		}

		frame, err := s.Exchange(ctx, tokens...)
		if frame == nil {
			return err
		}
		// A rejected previous frame still carries a usable response
		var statusErr *csafe.FrameStatusError
		if err != nil && !errors.As(err, &statusErr) {
			return err
		}

		if rerr := render(out, cfg.Output, frame.Response, func(w io.Writer) {
			fmt.Fprint(w, csafe.FormatFrame(frame))
		}); rerr != nil {
			return rerr
		}
		return err
	})
}

// parseTokens turns command line words into encoder tokens: integers become
// uint64 literals, everything else is resolved to a dictionary command name
func parseTokens(args []string) ([]interface{}, error) {
	tokens := make([]interface{}, 0, len(args))
	for _, arg := range args {
		if n, err := strconv.ParseUint(arg, 0, 64); err == nil {
			tokens = append(tokens, n)
			continue
		}
		name, err := resolveCommand(arg)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, name)
	}
	return tokens, nil
}

func resolveCommand(word string) (csafe.Command, error) {
	upper := strings.ToUpper(word)
	for _, candidate := range []string{upper, "CSAFE_" + upper, "CSAFE_" + upper + "_CMD"} {
		if _, ok := csafe.LookupCommand(csafe.Command(candidate)); ok {
			return csafe.Command(candidate), nil
		}
	}
	return "", fmt.Errorf("%w: %s", csafe.ErrUnknownCommand, word)
}
