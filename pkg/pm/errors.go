// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pm

import (
	"errors"
	"fmt"
)

var (
	ErrShortWrite         = errors.New("pm: short write")
	ErrEmptyRead          = errors.New("pm: no response")
	ErrMissingField       = errors.New("pm: response missing field")
	ErrUnknownStrokeState = errors.New("pm: unrecognized stroke state")
	ErrClosed             = errors.New("pm: session closed")
)

// Workout validation errors
var (
	ErrOutOfRange      = errors.New("pm: value out of range")
	ErrWorkoutTooShort = errors.New("pm: workout too short")
	ErrSplitNotAllowed = errors.New("pm: cannot set split for current goal")
)

// TransportError is a write or read failure on the link. It is fatal to the
// current call and never retried.
type TransportError struct {
	Op  string // "write" or "read"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pm: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError reports a workout parameter rejected before anything was
// sent to the monitor
type ValidationError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
	Err   error
}

func (e *ValidationError) Error() string {
	switch e.Err {
	case ErrOutOfRange:
		return fmt.Sprintf("pm: %s %g outside of range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
	case ErrWorkoutTooShort:
		return fmt.Sprintf("pm: workout too short: %g s (minimum %g s)", e.Value, e.Min)
	}
	return fmt.Sprintf("pm: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func outOfRange(field string, value, min, max float64) error {
	if value < min || value > max {
		return &ValidationError{Field: field, Value: value, Min: min, Max: max, Err: ErrOutOfRange}
	}
	return nil
}
