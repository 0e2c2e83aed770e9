// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package csafe

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"
)

// Frame is a decoded response frame
type Frame struct {
	ReportID    byte
	Extended    bool
	Destination byte // extended frames only
	Source      byte // extended frames only
	Status      byte
	Response    Response
	Skipped     []string // records dropped for a byte count mismatch
}

// PreviousFrameStatus returns the masked previous-frame status bits
func (f *Frame) PreviousFrameStatus() PreviousFrameStatus {
	return PreviousFrameStatus(f.Status & MaskPreviousFrameStatus)
}

// MachineState returns the state machine nibble of the status byte
func (f *Frame) MachineState() MachineState {
	return MachineState(f.Status & MaskMachineState)
}

// Decoder decodes CSAFE response reports
type Decoder struct {
	logger *zap.Logger
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithLogger sets the logger used for skipped records
func WithLogger(logger *zap.Logger) DecoderOption {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDecoder creates a new response decoder
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode decodes a response report into a response map.
// On ErrUnknownResponseOpcode or a truncated record the records decoded so far
// are returned together with the error.
func (d *Decoder) Decode(raw []byte) (Response, error) {
	frame, err := d.DecodeFrame(raw)
	if frame == nil {
		return nil, err
	}
	return frame.Response, err
}

// Decode decodes a response report with a default decoder
func Decode(raw []byte) (Response, error) {
	return NewDecoder().Decode(raw)
}

// DecodeFrame decodes a response report. The returned frame is nil when the
// frame structure or checksum is invalid.
func (d *Decoder) DecodeFrame(raw []byte) (*Frame, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: report is %d bytes", ErrMissingStartFlag, len(raw))
	}

	frame := &Frame{ReportID: raw[0]}
	rest := raw[2:]

	switch raw[1] {
	case StandardStartFlag:
	case ExtendedStartFlag:
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: missing extended frame addresses", ErrTruncatedFrame)
		}
		frame.Extended = true
		frame.Destination = rest[0]
		frame.Source = rest[1]
		rest = rest[2:]
	default:
		return nil, fmt.Errorf("%w: got 0x%02X", ErrMissingStartFlag, raw[1])
	}

	stop := bytes.IndexByte(rest, StopFlag)
	if stop < 0 {
		return nil, ErrMissingStopFlag
	}

	content, sum, err := unstuffBytes(rest[:stop])
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrTruncatedFrame)
	}
	if sum != 0 {
		return nil, fmt.Errorf("%w: residue 0x%02X", ErrChecksum, sum)
	}
	content = content[:len(content)-1]
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: missing status byte", ErrTruncatedFrame)
	}

	frame.Status = content[0]
	frame.Response = Response{string(CmdGetStatus): {uint64(frame.Status)}}

	if frame.PreviousFrameStatus() != FrameOK {
		return frame, &FrameStatusError{Status: frame.Status}
	}

	if err := d.decodeRecords(frame, content[1:], 0); err != nil {
		return frame, err
	}
	return frame, nil
}

// decodeRecords walks [opcode][count][data...] records. Inside a wrapper the
// opcodes are qualified by the wrapper for dictionary lookup.
func (d *Decoder) decodeRecords(frame *Frame, data []byte, wrapper byte) error {
	out := frame.Response
	k := 0

	for k < len(data) {
		if k+2 > len(data) {
			return fmt.Errorf("%w: record header at offset %d", ErrTruncatedFrame, k)
		}
		opcode := data[k]
		count := int(data[k+1])
		k += 2
		if k+count > len(data) {
			return fmt.Errorf("%w: record 0x%02X needs %d bytes, %d left", ErrTruncatedFrame, opcode, count, len(data)-k)
		}
		payload := data[k : k+count]
		k += count

		if wrapper == 0 && IsWrapperOpcode(opcode) {
			if count == 0 {
				name := responses[uint16(opcode)].Name
				if !out.Has(name) {
					out[name] = []interface{}{}
				}
				continue
			}
			if err := d.decodeRecords(frame, payload, opcode); err != nil {
				return err
			}
			continue
		}

		key := ResponseKey(wrapper, opcode)
		spec, ok := responses[key]
		if !ok {
			return fmt.Errorf("%w: 0x%04X", ErrUnknownResponseOpcode, key)
		}

		switch spec.Name {
		case string(CmdGetID):
			out[spec.Name] = []interface{}{string(payload)}
			continue
		case string(CmdGetCaps):
			values := make([]interface{}, count)
			for i, b := range payload {
				values[i] = uint64(b)
			}
			out[spec.Name] = values
			continue
		}

		if size := spec.Size(); size != count {
			d.logger.Warn("skipping response record",
				zap.String("response", spec.Name),
				zap.Uint16("key", key),
				zap.Int("expected", size),
				zap.Int("actual", count),
				zap.Error(ErrFieldLengthMismatch))
			frame.Skipped = append(frame.Skipped, spec.Name)
			continue
		}

		if len(spec.Fields) == 0 {
			if !out.Has(spec.Name) {
				out[spec.Name] = []interface{}{}
			}
			continue
		}

		out[spec.Name] = extractFields(spec.Fields, payload)
	}

	return nil
}

// extractFields reads little-endian integers (positive widths) and ASCII
// strings (negative widths) from payload
func extractFields(fields []int, payload []byte) []interface{} {
	values := make([]interface{}, 0, len(fields))
	k := 0
	for _, width := range fields {
		n := abs(width)
		raw := payload[k : k+n]
		if width < 0 {
			values = append(values, string(raw))
		} else {
			values = append(values, littleEndian(raw))
		}
		k += n
	}
	return values
}

func littleEndian(raw []byte) uint64 {
	var v uint64
	for i, b := range raw {
		v |= uint64(b) << (8 * i)
	}
	return v
}
