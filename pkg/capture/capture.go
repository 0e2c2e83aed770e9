// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records and replays CSAFE exchanges.
//
// A capture is a CBOR stream: one Header followed by one Exchange per
// request/response round trip, each holding the raw report bytes as they
// crossed the link. The Recorder decorates a pm.Transport; the Replayer is a
// pm.Transport that answers from a capture.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

// FormatVersion is the capture format written by this package
const FormatVersion = 1

var (
	ErrVersion         = errors.New("capture: unsupported format version")
	ErrExhausted       = errors.New("capture: no more recorded exchanges")
	ErrRequestMismatch = errors.New("capture: request differs from recording")
)

// Header opens a capture
type Header struct {
	Version   int       `cbor:"1,keyasint" json:"version"`
	SessionID string    `cbor:"2,keyasint" json:"session_id"`
	Started   time.Time `cbor:"3,keyasint" json:"started"`
	Source    string    `cbor:"4,keyasint,omitempty" json:"source,omitempty"`
}

// Exchange is one recorded round trip. Response is empty and Error set when
// the link failed; FailedOp tells whether the write or the read failed.
type Exchange struct {
	Seq      uint64        `cbor:"1,keyasint" json:"seq"`
	Time     time.Time     `cbor:"2,keyasint" json:"time"`
	Request  []byte        `cbor:"3,keyasint" json:"request"`
	Response []byte        `cbor:"4,keyasint,omitempty" json:"response,omitempty"`
	Latency  time.Duration `cbor:"5,keyasint" json:"latency"`
	Error    string        `cbor:"6,keyasint,omitempty" json:"error,omitempty"`
	FailedOp string        `cbor:"7,keyasint,omitempty" json:"failed_op,omitempty"`
}

// Decode parses the recorded request and response frames. Either result may
// be nil when its bytes are missing or damaged; the first error is returned.
func (e *Exchange) Decode(dec *csafe.Decoder) (*csafe.Request, *csafe.Frame, error) {
	req, err := csafe.ParseRequest(e.Request)
	if err != nil {
		err = fmt.Errorf("request: %w", err)
	}
	if len(e.Response) == 0 {
		return req, nil, err
	}

	frame, respErr := dec.DecodeFrame(e.Response)
	if err == nil && respErr != nil {
		err = fmt.Errorf("response: %w", respErr)
	}
	return req, frame, err
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
}

// Reader reads a capture stream
type Reader struct {
	Header Header
	dec    *cbor.Decoder
}

// NewReader reads and checks the capture header
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{dec: cbor.NewDecoder(r)}
	if err := rd.dec.Decode(&rd.Header); err != nil {
		return nil, fmt.Errorf("capture: failed to read header: %w", err)
	}
	if rd.Header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, rd.Header.Version)
	}
	return rd, nil
}

// Next returns the next exchange, or io.EOF at the end of the capture
func (r *Reader) Next() (*Exchange, error) {
	var e Exchange
	if err := r.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("capture: failed to read exchange: %w", err)
	}
	return &e, nil
}

// ReadAll reads a whole capture
func ReadAll(r io.Reader) (*Header, []Exchange, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	var exchanges []Exchange
	for {
		e, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return &rd.Header, exchanges, nil
		}
		if err != nil {
			return &rd.Header, exchanges, err
		}
		exchanges = append(exchanges, *e)
	}
}
