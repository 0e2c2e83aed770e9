// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package csafe

import (
	"fmt"
	"strings"
)

// FormatFrame formats a decoded response frame into a human-readable string
func FormatFrame(f *Frame) string {
	var b strings.Builder

	fmt.Fprintf(&b, "report=0x%02X status=0x%02X (%s, %s)", f.ReportID, f.Status,
		f.PreviousFrameStatus(), f.MachineState())
	if f.Extended {
		fmt.Fprintf(&b, " dst=0x%02X src=0x%02X", f.Destination, f.Source)
	}
	b.WriteString("\n")
	b.WriteString(FormatResponse(f.Response))
	for _, name := range f.Skipped {
		fmt.Fprintf(&b, "  %s: skipped (length mismatch)\n", ShortName(name))
	}
	return b.String()
}

// FormatResponse formats a response map, one response per line in name order
func FormatResponse(r Response) string {
	var b strings.Builder
	for _, name := range r.Names() {
		fmt.Fprintf(&b, "  %s: %s\n", ShortName(name), formatValues(name, r[name]))
	}
	return b.String()
}

// FormatRequest formats a parsed request frame
func FormatRequest(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "report=0x%02X commands=%d\n", req.ReportID, len(req.Commands))
	for _, c := range req.Commands {
		fmt.Fprintf(&b, "  %s", ShortName(string(c.Name)))
		if c.Spec.IsWrapped() {
			fmt.Fprintf(&b, " [wrapper 0x%02X]", c.Spec.Wrapper)
		}
		if len(c.Args) > 0 {
			fmt.Fprintf(&b, " %v", c.Args)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatHex formats raw bytes as space separated hex
func FormatHex(data []byte) string {
	parts := make([]string, len(data))
	for i, v := range data {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

// ShortName strips the CSAFE_ prefix and _CMD suffix from a name
func ShortName(name string) string {
	name = strings.TrimPrefix(name, "CSAFE_")
	return strings.TrimSuffix(name, "_CMD")
}

func formatValues(name string, values []interface{}) string {
	if len(values) == 0 {
		return "(no data)"
	}

	switch Command(name) {
	case CmdGetStatus:
		status, _ := values[0].(uint64)
		return fmt.Sprintf("0x%02X %s/%s", status,
			PreviousFrameStatus(byte(status)&MaskPreviousFrameStatus),
			MachineState(byte(status)&MaskMachineState))
	case CmdPMGetStrokeState:
		v, _ := values[0].(uint64)
		return fmt.Sprintf("%s (%d)", StrokeState(v), v)
	case CmdPMGetWorkoutState:
		v, _ := values[0].(uint64)
		return fmt.Sprintf("%s (%d)", WorkoutState(v), v)
	case CmdPMGetOperationalState:
		v, _ := values[0].(uint64)
		return fmt.Sprintf("%s (%d)", OperationalState(v), v)
	case CmdPMGetWorkTime:
		return fmt.Sprintf("%.2f s", float64(sumUints(values))/100)
	case CmdPMGetWorkDistance:
		return fmt.Sprintf("%.1f m", float64(sumUints(values))/10)
	}

	parts := make([]string, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case string:
			parts[i] = fmt.Sprintf("%q", strings.TrimRight(t, " \x00"))
		default:
			parts[i] = fmt.Sprintf("%v", t)
		}
	}
	return strings.Join(parts, ", ")
}

func sumUints(values []interface{}) uint64 {
	var total uint64
	for _, v := range values {
		if n, ok := v.(uint64); ok {
			total += n
		}
	}
	return total
}
