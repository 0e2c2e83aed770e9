// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package csafe

import (
	"fmt"
)

// Worst-case response accounting. This is a heuristic upper bound used only
// to pick a report size: field bytes are doubled for stuffing, each record
// adds one byte, each opened wrapper adds two, and the frame adds start
// flag, stop flag and status.
const (
	responseFrameOverhead   = 3
	responseWrapperOverhead = 2
	responseRecordOverhead  = 1
)

// Report is an encoded command batch ready for transmission
type Report struct {
	ID          byte
	Data        []byte // report id followed by the padded frame
	FrameLength int    // frame length before padding, flags included
	MaxResponse int    // worst-case expected response length
}

// Encoder turns command names and literal arguments into CSAFE reports.
type Encoder struct{}

// NewEncoder creates a new CSAFE frame encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode encodes a batch to a report. Tokens are command names (Command or
// string) each followed by one integer literal per argument of a long command.
func (e *Encoder) Encode(tokens ...interface{}) (*Report, error) {
	content, maxResponse, err := encodeContent(tokens)
	if err != nil {
		return nil, err
	}

	frame := buildFrame(StandardStartFlag, content)
	if len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLong, len(frame), MaxFrameSize)
	}

	id, size, err := selectReport(len(frame)+1, maxResponse)
	if err != nil {
		return nil, err
	}

	return &Report{
		ID:          id,
		Data:        padReport(id, size, frame),
		FrameLength: len(frame),
		MaxResponse: maxResponse,
	}, nil
}

// Encode encodes a command batch with a default encoder and returns the
// bytes to transmit.
func Encode(tokens ...interface{}) ([]byte, error) {
	report, err := NewEncoder().Encode(tokens...)
	if err != nil {
		return nil, err
	}
	return report.Data, nil
}

// wrapBuffer accumulates commands that share a wrapper until a command with
// a different wrapper (or none) arrives.
type wrapBuffer struct {
	opcode byte
	data   []byte
}

func (w *wrapBuffer) isOpen() bool {
	return w.opcode != 0
}

func (w *wrapBuffer) open(opcode byte) {
	w.opcode = opcode
	w.data = w.data[:0]
}

func (w *wrapBuffer) add(cmd []byte) {
	w.data = append(w.data, cmd...)
}

// flush emits [wrapper][count][wrapped commands] and closes the buffer
func (w *wrapBuffer) flush(dst []byte) ([]byte, error) {
	if !w.isOpen() {
		return dst, nil
	}
	if len(w.data) > 0xFF {
		return nil, fmt.Errorf("%w: wrapper 0x%02X carries %d bytes", ErrFrameTooLong, w.opcode, len(w.data))
	}
	dst = append(dst, w.opcode, byte(len(w.data)))
	dst = append(dst, w.data...)
	w.opcode = 0
	w.data = w.data[:0]
	return dst, nil
}

// encodeContent walks the token list and returns the unstuffed frame
// contents and the worst-case response size
func encodeContent(tokens []interface{}) ([]byte, int, error) {
	var (
		content     []byte
		wb          wrapBuffer
		err         error
		maxResponse = responseFrameOverhead
		bare        = map[byte]bool{}
		wrappers    = map[byte]bool{}
	)

	for i := 0; i < len(tokens); i++ {
		name, ok := commandName(tokens[i])
		if !ok {
			return nil, 0, fmt.Errorf("%w: literal %v at position %d where a command was expected", ErrUnknownCommand, tokens[i], i)
		}
		spec, ok := commands[name]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
		}

		cmd := []byte{spec.Opcode}
		if spec.IsLong() {
			data := make([]byte, 0, 8)
			for _, width := range spec.ArgWidths {
				i++
				if i >= len(tokens) {
					return nil, 0, fmt.Errorf("%w: %s expects %d arguments", ErrMissingArgument, name, len(spec.ArgWidths))
				}
				data, err = appendLiteral(data, tokens[i], width)
				if err != nil {
					return nil, 0, fmt.Errorf("%s argument %d: %w", name, i, err)
				}
			}
			cmd = append(cmd, byte(len(data)))
			cmd = append(cmd, data...)
		}

		if wb.isOpen() && wb.opcode != spec.Wrapper {
			if content, err = wb.flush(content); err != nil {
				return nil, 0, err
			}
		}

		if spec.IsWrapped() {
			if !wb.isOpen() {
				wb.open(spec.Wrapper)
				maxResponse += responseWrapperOverhead
			}
			wb.add(cmd)
			wrappers[spec.Wrapper] = true
		} else {
			content = append(content, cmd...)
			bare[spec.Opcode] = true
		}

		resp, ok := responses[spec.ResponseKey()]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrNoResponseLayout, name)
		}
		maxResponse += resp.Size()*2 + responseRecordOverhead
	}

	if content, err = wb.flush(content); err != nil {
		return nil, 0, err
	}

	for opcode := range wrappers {
		if bare[opcode] {
			return nil, 0, fmt.Errorf("%w: 0x%02X", ErrWrapperConflict, opcode)
		}
	}

	return content, maxResponse, nil
}

// buildFrame appends the checksum to content, stuffs both and adds the flags
func buildFrame(startFlag byte, content []byte) []byte {
	body := make([]byte, 0, len(content)+1)
	body = append(body, content...)
	body = append(body, Checksum(content))

	stuffed := stuffBytes(body)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, startFlag)
	frame = append(frame, stuffed...)
	frame = append(frame, StopFlag)
	return frame
}

// selectReport picks the smallest report that holds both the outgoing
// message (report id included) and the worst-case response
func selectReport(messageLen, maxResponse int) (byte, int, error) {
	need := messageLen
	if maxResponse > need {
		need = maxResponse
	}

	switch {
	case need <= ReportSizeSmall:
		return ReportIDSmall, ReportSizeSmall, nil
	case need <= ReportSizeMedium:
		return ReportIDMedium, ReportSizeMedium, nil
	case messageLen <= ReportSizeLarge:
		if maxResponse > ReportSizeLarge {
			return 0, 0, fmt.Errorf("%w: up to %d bytes (max %d)", ErrResponseTooLong, maxResponse, ReportSizeLarge)
		}
		return ReportIDLarge, ReportSizeLarge, nil
	}
	return 0, 0, fmt.Errorf("%w: message %d bytes (max %d)", ErrFrameTooLong, messageLen, ReportSizeLarge)
}

// padReport prefixes the report id and zero-pads to size
func padReport(id byte, size int, frame []byte) []byte {
	report := make([]byte, size)
	report[0] = id
	copy(report[1:], frame)
	return report
}

func commandName(token interface{}) (Command, bool) {
	switch v := token.(type) {
	case Command:
		return v, true
	case string:
		return Command(v), true
	}
	return "", false
}

// appendLiteral appends token as a little-endian integer of width bytes
func appendLiteral(dst []byte, token interface{}, width int) ([]byte, error) {
	value, ok := toUint(token)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not a non-negative integer", ErrArgumentRange, token, token)
	}
	if width < 8 && value >= uint64(1)<<(8*width) {
		return nil, fmt.Errorf("%w: %d does not fit in %d byte(s)", ErrArgumentRange, value, width)
	}
	for k := 0; k < width; k++ {
		dst = append(dst, byte(value>>(8*k)))
	}
	return dst, nil
}

func toUint(token interface{}) (uint64, bool) {
	switch v := token.(type) {
	case int:
		return uint64(v), v >= 0
	case int8:
		return uint64(v), v >= 0
	case int16:
		return uint64(v), v >= 0
	case int32:
		return uint64(v), v >= 0
	case int64:
		return uint64(v), v >= 0
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	}
	return 0, false
}
