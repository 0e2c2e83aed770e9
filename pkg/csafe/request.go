// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package csafe

import (
	"bytes"
	"fmt"
)

// RequestCommand is one command recovered from a request frame
type RequestCommand struct {
	Name Command
	Spec CommandSpec
	Args []uint64
}

// Request is a decoded request frame, as seen by a device
type Request struct {
	ReportID byte
	Commands []RequestCommand
}

// Names returns the command names in transmission order
func (r *Request) Names() []Command {
	names := make([]Command, len(r.Commands))
	for i, c := range r.Commands {
		names[i] = c.Name
	}
	return names
}

// requestWrappers are the opcodes that may carry nested commands
var requestWrappers = map[byte]bool{
	WrapperSetUserCfg1: true,
	WrapperSetPMCfg:    true,
	WrapperSetPMData:   true,
	WrapperGetPMCfg:    true,
	WrapperGetPMData:   true,
}

// ParseRequest decodes a request report into its commands and arguments.
// It is the inverse of Encode and is used by simulated devices and capture
// replay.
func ParseRequest(raw []byte) (*Request, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: report is %d bytes", ErrMissingStartFlag, len(raw))
	}

	rest := raw[2:]
	switch raw[1] {
	case StandardStartFlag:
	case ExtendedStartFlag:
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: missing extended frame addresses", ErrTruncatedFrame)
		}
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

	req := &Request{ReportID: raw[0]}
	if err := parseCommands(req, content[:len(content)-1], 0); err != nil {
		return nil, err
	}
	return req, nil
}

func parseCommands(req *Request, data []byte, wrapper byte) error {
	k := 0
	for k < len(data) {
		opcode := data[k]
		k++

		var payload []byte
		if opcode < 0x80 {
			if k >= len(data) {
				return fmt.Errorf("%w: command 0x%02X missing byte count", ErrTruncatedFrame, opcode)
			}
			count := int(data[k])
			k++
			if k+count > len(data) {
				return fmt.Errorf("%w: command 0x%02X needs %d bytes", ErrTruncatedFrame, opcode, count)
			}
			payload = data[k : k+count]
			k += count
		}

		if wrapper == 0 && requestWrappers[opcode] && len(payload) > 0 {
			if err := parseCommands(req, payload, opcode); err != nil {
				return err
			}
			continue
		}

		name, spec, ok := CommandByOpcode(wrapper, opcode)
		if !ok {
			return fmt.Errorf("%w: opcode 0x%02X in wrapper 0x%02X", ErrUnknownCommand, opcode, wrapper)
		}

		args := make([]uint64, 0, len(spec.ArgWidths))
		offset := 0
		for _, width := range spec.ArgWidths {
			if offset+width > len(payload) {
				return fmt.Errorf("%w: %s carries %d bytes", ErrFieldLengthMismatch, name, len(payload))
			}
			args = append(args, littleEndian(payload[offset:offset+width]))
			offset += width
		}
		if offset != len(payload) {
			return fmt.Errorf("%w: %s carries %d bytes, expected %d", ErrFieldLengthMismatch, name, len(payload), offset)
		}

		req.Commands = append(req.Commands, RequestCommand{Name: name, Spec: spec, Args: args})
	}
	return nil
}

// ResponseRecord is one command response to place in a device frame
type ResponseRecord struct {
	Key    uint16 // ResponseKey(wrapper, opcode)
	Values []interface{}
}

// EncodeResponse builds a device response report: status byte followed by
// the records, with consecutive records of the same wrapper grouped, then
// checksummed, stuffed and padded to the smallest report that fits.
func EncodeResponse(status byte, records []ResponseRecord) ([]byte, error) {
	content := []byte{status}
	var (
		wb  wrapBuffer
		err error
	)

	for _, rec := range records {
		spec, ok := responses[rec.Key]
		if !ok {
			return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownResponseOpcode, rec.Key)
		}
		data, err := encodeValues(spec, rec.Values)
		if err != nil {
			return nil, err
		}
		if len(data) > 0xFF {
			return nil, fmt.Errorf("%w: %s carries %d bytes", ErrFrameTooLong, spec.Name, len(data))
		}

		wrapper := byte(rec.Key >> 8)
		record := append([]byte{byte(rec.Key), byte(len(data))}, data...)

		if wb.isOpen() && wb.opcode != wrapper {
			if content, err = wb.flush(content); err != nil {
				return nil, err
			}
		}
		if wrapper != 0 {
			if !wb.isOpen() {
				wb.open(wrapper)
			}
			wb.add(record)
		} else {
			content = append(content, record...)
		}
	}
	if content, err = wb.flush(content); err != nil {
		return nil, err
	}

	frame := buildFrame(StandardStartFlag, content)
	id, size, err := selectReport(len(frame)+1, 0)
	if err != nil {
		return nil, err
	}
	return padReport(id, size, frame), nil
}

// encodeValues lays out values according to the response fields
func encodeValues(spec ResponseSpec, values []interface{}) ([]byte, error) {
	switch spec.Name {
	case string(CmdGetID):
		if len(values) != 1 {
			return nil, fmt.Errorf("%w: %s takes one text value", ErrArgumentRange, spec.Name)
		}
		text, ok := values[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s takes one text value", ErrArgumentRange, spec.Name)
		}
		return []byte(text), nil
	case string(CmdGetCaps):
		data := make([]byte, 0, len(values))
		var err error
		for _, v := range values {
			if data, err = appendLiteral(data, v, 1); err != nil {
				return nil, err
			}
		}
		return data, nil
	}

	if len(values) != len(spec.Fields) {
		return nil, fmt.Errorf("%w: %s takes %d values, got %d", ErrArgumentRange, spec.Name, len(spec.Fields), len(values))
	}

	data := make([]byte, 0, spec.Size())
	for i, width := range spec.Fields {
		if width < 0 {
			text, ok := values[i].(string)
			if !ok || len(text) > -width {
				return nil, fmt.Errorf("%w: %s field %d takes up to %d ASCII bytes", ErrArgumentRange, spec.Name, i, -width)
			}
			field := bytes.Repeat([]byte{' '}, -width)
			copy(field, text)
			data = append(data, field...)
			continue
		}
		var err error
		if data, err = appendLiteral(data, values[i], width); err != nil {
			return nil, fmt.Errorf("%s field %d: %w", spec.Name, i, err)
		}
	}
	return data, nil
}
