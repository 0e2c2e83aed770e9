// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package csafe

import (
	"errors"
	"fmt"
)

// Construction errors, raised while encoding and never sent
var (
	ErrUnknownCommand   = errors.New("csafe: unknown command")
	ErrArgumentRange    = errors.New("csafe: argument out of range")
	ErrMissingArgument  = errors.New("csafe: missing argument")
	ErrWrapperConflict  = errors.New("csafe: wrapper sent both bare and as a wrapper")
	ErrFrameTooLong     = errors.New("csafe: frame too long")
	ErrResponseTooLong  = errors.New("csafe: expected response too long")
	ErrNoResponseLayout = errors.New("csafe: command has no response layout")
)

// Frame integrity errors
var (
	ErrMissingStartFlag = errors.New("csafe: missing start flag")
	ErrMissingStopFlag  = errors.New("csafe: missing stop flag")
	ErrChecksum         = errors.New("csafe: checksum error")
	ErrTruncatedFrame   = errors.New("csafe: truncated frame")
)

// Content errors
var (
	ErrPreviousFrameRejected = errors.New("csafe: previous frame not accepted")
	ErrUnknownResponseOpcode = errors.New("csafe: unknown response opcode")
	ErrFieldLengthMismatch   = errors.New("csafe: response byte count mismatch")
)

// FrameStatusError reports a response whose status byte flags the previous
// request frame as not accepted
type FrameStatusError struct {
	Status byte
}

func (e *FrameStatusError) Error() string {
	return fmt.Sprintf("csafe: previous frame status %s (status 0x%02X)", e.Previous(), e.Status)
}

// Previous returns the previous-frame status bits
func (e *FrameStatusError) Previous() PreviousFrameStatus {
	return PreviousFrameStatus(e.Status & MaskPreviousFrameStatus)
}

// Is matches ErrPreviousFrameRejected
func (e *FrameStatusError) Is(target error) bool {
	return target == ErrPreviousFrameRejected
}

// IsConstructionError reports whether err was raised while building a request
func IsConstructionError(err error) bool {
	for _, target := range []error{
		ErrUnknownCommand, ErrArgumentRange, ErrMissingArgument, ErrWrapperConflict,
		ErrFrameTooLong, ErrResponseTooLong, ErrNoResponseLayout,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsIntegrityError reports whether err means the received frame was damaged
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrMissingStartFlag) ||
		errors.Is(err, ErrMissingStopFlag) ||
		errors.Is(err, ErrChecksum) ||
		errors.Is(err, ErrTruncatedFrame)
}
