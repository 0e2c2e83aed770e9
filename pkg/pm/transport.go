// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pm talks to a Concept2 performance monitor over a CSAFE link.
//
// A Session owns the link, spaces frames by a minimum gap, and turns command
// batches into decoded responses. On top of that it offers the composite
// queries used by the CLI: monitor and workout snapshots, device identity,
// clock and workout programming, and per-stroke force curve capture.
package pm

import "time"

// Transport is the byte link to a monitor. Each call is bounded by its
// timeout; a call that times out returns an error.
type Transport interface {
	// Write sends one report and returns the number of bytes written
	Write(p []byte, timeout time.Duration) (int, error)
	// Read receives one report of at most maxLen bytes
	Read(maxLen int, timeout time.Duration) ([]byte, error)
}
