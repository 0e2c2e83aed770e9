// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/ergostat/pkg/pm"
)

// render writes v as JSON or YAML, or calls text for the human readable form
func render(w io.Writer, format string, v interface{}, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

// formatPace renders seconds per 500 m as m:ss.t
func formatPace(seconds float64) string {
	if seconds <= 0 {
		return "-:--.-"
	}
	minutes := int(seconds) / 60
	return fmt.Sprintf("%d:%04.1f", minutes, seconds-float64(minutes*60))
}

// formatElapsed renders seconds as h:mm:ss.t, dropping a zero hour
func formatElapsed(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := int(seconds) / 60 % 60
	rest := seconds - float64(hours*3600+minutes*60)
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%04.1f", hours, minutes, rest)
	}
	return fmt.Sprintf("%d:%04.1f", minutes, rest)
}

func printMonitor(w io.Writer, m *pm.Monitor) {
	fmt.Fprintf(w, "Status:     %s\n", m.Status)
	fmt.Fprintf(w, "Time:       %s\n", formatElapsed(m.Time))
	fmt.Fprintf(w, "Distance:   %.1f m\n", m.Distance)
	fmt.Fprintf(w, "Stroke:     %d spm\n", m.SPM)
	fmt.Fprintf(w, "Power:      %d W\n", m.Power)
	fmt.Fprintf(w, "Pace:       %s /500m\n", formatPace(m.Pace))
	fmt.Fprintf(w, "Cal/hr:     %.0f\n", m.CalHr)
	fmt.Fprintf(w, "Calories:   %d\n", m.Calories)
	fmt.Fprintf(w, "Heart Rate: %d bpm\n", m.HeartRate)
	if m.ForceCurve != nil {
		fmt.Fprintf(w, "Force:      %s\n", sparkline(m.ForceCurve))
	}
}

func printWorkout(w io.Writer, wo *pm.Workout) {
	fmt.Fprintf(w, "Status:         %s\n", wo.Status)
	fmt.Fprintf(w, "User ID:        %s\n", wo.UserID)
	fmt.Fprintf(w, "Workout Type:   %d\n", wo.Type)
	fmt.Fprintf(w, "Workout State:  %s\n", wo.State)
	fmt.Fprintf(w, "Interval Type:  %d\n", wo.IntervalType)
	fmt.Fprintf(w, "Interval Count: %d\n", wo.IntervalCount)
}

func printErgInfo(w io.Writer, e *pm.ErgInfo) {
	fmt.Fprintf(w, "Status:          %s\n", e.Status)
	fmt.Fprintf(w, "Manufacturer:    %d\n", e.MfgID)
	fmt.Fprintf(w, "Class:           %d\n", e.CID)
	fmt.Fprintf(w, "Model:           %d\n", e.Model)
	fmt.Fprintf(w, "Hardware:        %d\n", e.HWVersion)
	fmt.Fprintf(w, "Software:        %d\n", e.SWVersion)
	fmt.Fprintf(w, "Serial:          %s\n", strings.TrimSpace(e.Serial))
	fmt.Fprintf(w, "Max Rx Frame:    %d bytes\n", e.MaxRx)
	fmt.Fprintf(w, "Max Tx Frame:    %d bytes\n", e.MaxTx)
	fmt.Fprintf(w, "Min Interframe:  %d ms\n", e.MinInterframe)
}

func printStates(w io.Writer, s *pm.StateSnapshot) {
	fmt.Fprintf(w, "Machine:     %s\n", s.Machine)
	fmt.Fprintf(w, "Stroke:      %s\n", s.Stroke)
	fmt.Fprintf(w, "Workout:     %s\n", s.Workout)
	fmt.Fprintf(w, "Operational: %s\n", s.Operational)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// sparkline draws samples as block characters scaled to the largest sample
func sparkline(samples []uint64) string {
	if len(samples) == 0 {
		return "(none)"
	}
	var peak uint64
	for _, v := range samples {
		if v > peak {
			peak = v
		}
	}
	var b strings.Builder
	for _, v := range samples {
		idx := 0
		if peak > 0 {
			idx = int(v * uint64(len(sparkBlocks)-1) / peak)
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
