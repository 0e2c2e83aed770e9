// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/capture"
	"github.com/Thermoquad/ergostat/pkg/csafe"
	"github.com/Thermoquad/ergostat/pkg/pm"
)

var replayCheck bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode a capture file recorded with --record",
	Long: `Print every exchange of a capture file: the decoded request, the decoded
response frame, latency and any link error.

With --check the requests are re-encoded from their decoded commands and run
through a session against the recorded responses, failing if the encoder
produces different bytes than were recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayCheck, "check", false, "Re-encode requests and compare against the recording")
	rootCmd.AddCommand(replayCmd)
}

// replayDump is the structured form of a capture file
type replayDump struct {
	Header    *capture.Header    `json:"header" yaml:"header"`
	Exchanges []capture.Exchange `json:"exchanges" yaml:"exchanges"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	header, exchanges, err := capture.ReadAll(f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if replayCheck {
		return checkReplay(cmd.Context(), out, exchanges)
	}

	return render(out, cfg.Output, replayDump{Header: header, Exchanges: exchanges}, func(w io.Writer) {
		printReplay(w, header, exchanges)
	})
}

func printReplay(w io.Writer, header *capture.Header, exchanges []capture.Exchange) {
	fmt.Fprintf(w, "Capture %s (format %d)\n", header.SessionID, header.Version)
	fmt.Fprintf(w, "Source:  %s\n", header.Source)
	fmt.Fprintf(w, "Started: %s\n", header.Started.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(w, "Exchanges: %d\n\n", len(exchanges))

	dec := csafe.NewDecoder(csafe.WithLogger(logger.Named("csafe")))
	for i := range exchanges {
		e := &exchanges[i]
		fmt.Fprintf(w, "#%d [%s] latency=%s\n", e.Seq, e.Time.Format("15:04:05.000"), e.Latency)

		req, frame, err := e.Decode(dec)
		if req != nil {
			fmt.Fprintf(w, "-> %s", csafe.FormatRequest(req))
		} else {
			fmt.Fprintf(w, "-> %s\n", csafe.FormatHex(e.Request))
		}
		if frame != nil {
			fmt.Fprintf(w, "<- %s", csafe.FormatFrame(frame))
		}
		if e.Error != "" {
			fmt.Fprintf(w, "!! %s failed: %s\n", e.FailedOp, e.Error)
		} else if err != nil {
			fmt.Fprintf(w, "!! %v\n", err)
		}
		fmt.Fprintln(w)
	}
}

// checkReplay rebuilds each request from its decoded commands and exchanges
// it with a strict replayer
func checkReplay(ctx context.Context, w io.Writer, exchanges []capture.Exchange) error {
	replayer := capture.NewReplayer(exchanges, true)
	s := pm.NewSession(replayer,
		pm.WithLogger(logger.Named("pm")),
		pm.WithFrameGap(0))
	defer s.Close()

	dec := csafe.NewDecoder()
	mismatches := 0
	for i := range exchanges {
		e := &exchanges[i]
		req, err := csafe.ParseRequest(e.Request)
		if err != nil {
			logger.Warn("undecodable request", zap.Uint64("seq", e.Seq), zap.Error(err))
			mismatches++
			// keep the replayer aligned with the recording
			_, _ = replayer.Write(e.Request, 0)
			_, _ = replayer.Read(csafe.MaxReportSize, 0)
			continue
		}

		_, err = s.Exchange(ctx, requestTokens(req)...)
		if err != nil && e.Error == "" {
			if _, _, derr := e.Decode(dec); derr == nil {
				fmt.Fprintf(w, "#%d: %v\n", e.Seq, err)
				mismatches++
			}
		}
	}

	fmt.Fprintf(w, "Checked %d exchanges, %d mismatches\n", len(exchanges), mismatches)
	if mismatches > 0 {
		return fmt.Errorf("%d of %d exchanges did not replay", mismatches, len(exchanges))
	}
	return nil
}

// requestTokens converts a decoded request back into encoder tokens
func requestTokens(req *csafe.Request) []interface{} {
	var tokens []interface{}
	for _, c := range req.Commands {
		tokens = append(tokens, c.Name)
		for _, a := range c.Args {
			tokens = append(tokens, a)
		}
	}
	return tokens
}
