// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package csafe

import "sort"

// Response maps response names to their extracted field values. Integer
// fields decode to uint64 and ASCII fields to string. The status byte is
// always present under CSAFE_GETSTATUS_CMD.
type Response map[string][]interface{}

// Has reports whether the named response was decoded
func (r Response) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Uint extracts an integer field by response name and index
func (r Response) Uint(name string, index int) (uint64, bool) {
	values, ok := r[name]
	if !ok || index < 0 || index >= len(values) {
		return 0, false
	}
	v, ok := values[index].(uint64)
	return v, ok
}

// Text extracts an ASCII field by response name and index
func (r Response) Text(name string, index int) (string, bool) {
	values, ok := r[name]
	if !ok || index < 0 || index >= len(values) {
		return "", false
	}
	v, ok := values[index].(string)
	return v, ok
}

// Uints returns every integer field of a response, skipping text fields
func (r Response) Uints(name string) []uint64 {
	values := r[name]
	out := make([]uint64, 0, len(values))
	for _, v := range values {
		if n, ok := v.(uint64); ok {
			out = append(out, n)
		}
	}
	return out
}

// Status returns the raw status byte
func (r Response) Status() (byte, bool) {
	v, ok := r.Uint(string(CmdGetStatus), 0)
	return byte(v), ok
}

// MachineState returns the state machine nibble of the status byte
func (r Response) MachineState() MachineState {
	status, _ := r.Status()
	return MachineState(status & MaskMachineState)
}

// Names returns the decoded response names in sorted order
func (r Response) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
