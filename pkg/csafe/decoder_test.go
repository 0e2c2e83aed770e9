package csafe

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// responseReport frames raw response content (status byte first) the way a
// device would
func responseReport(t *testing.T, content ...byte) []byte {
	t.Helper()
	frame := buildFrame(StandardStartFlag, content)
	id, size, err := selectReport(len(frame)+1, 0)
	require.NoError(t, err)
	return padReport(id, size, frame)
}

func TestDecode_KnownReport(t *testing.T) {
	raw := []byte{0x01, 0xF1, 0x01, 0xB4, 0x03, 0xC8, 0x00, 0x58, 0x26, 0xF2}
	raw = append(raw, make([]byte, ReportSizeSmall-len(raw))...)

	resp, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{uint64(0x01)}, resp[string(CmdGetStatus)])
	assert.Equal(t, []interface{}{uint64(200), uint64(UnitsWatts)}, resp[string(CmdGetPower)])
	assert.Equal(t, MachineReady, resp.MachineState())
}

func TestDecode_Records(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    Response
	}{
		{
			name:    "status only",
			content: []byte{0x05},
			want:    Response{string(CmdGetStatus): {uint64(0x05)}},
		},
		{
			name:    "status record does not overwrite status byte",
			content: []byte{0x01, 0x80, 0x00},
			want:    Response{string(CmdGetStatus): {uint64(0x01)}},
		},
		{
			name:    "wrapped stroke state",
			content: []byte{0x05, 0x1A, 0x03, 0xBF, 0x01, 0x02},
			want: Response{
				string(CmdGetStatus):        {uint64(0x05)},
				string(CmdPMGetStrokeState): {uint64(StrokeDriving)},
			},
		},
		{
			name:    "wrapped work time and distance",
			content: []byte{0x05, 0x1A, 0x0E, 0xA0, 0x05, 0x10, 0x27, 0x00, 0x00, 0x07, 0xA3, 0x05, 0xE8, 0x03, 0x00, 0x00, 0x03},
			want: Response{
				string(CmdGetStatus):         {uint64(0x05)},
				string(CmdPMGetWorkTime):     {uint64(10000), uint64(7)},
				string(CmdPMGetWorkDistance): {uint64(1000), uint64(3)},
			},
		},
		{
			name:    "identity is one string of byte count length",
			content: []byte{0x01, 0x92, 0x03, '1', '2', '3'},
			want: Response{
				string(CmdGetStatus): {uint64(0x01)},
				string(CmdGetID):     {"123"},
			},
		},
		{
			name:    "capabilities have one field per byte",
			content: []byte{0x01, 0x70, 0x03, 0x60, 0x60, 0x00},
			want: Response{
				string(CmdGetStatus): {uint64(0x01)},
				string(CmdGetCaps):   {uint64(0x60), uint64(0x60), uint64(0x00)},
			},
		},
		{
			name:    "serial is ascii",
			content: append([]byte{0x01, 0x94, 0x09}, []byte("431234567")...),
			want: Response{
				string(CmdGetStatus): {uint64(0x01)},
				string(CmdGetSerial): {"431234567"},
			},
		},
		{
			name:    "empty wrapper",
			content: []byte{0x01, 0x7E, 0x00},
			want: Response{
				string(CmdGetStatus): {uint64(0x01)},
				string(CmdGetPMCfg):  {},
			},
		},
		{
			name:    "reserved field bytes",
			content: []byte{0x05, 0xB4, 0x03, 0xF1, 0x00, 0x58},
			want: Response{
				string(CmdGetStatus): {uint64(0x05)},
				string(CmdGetPower):  {uint64(0xF1), uint64(UnitsWatts)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := Decode(responseReport(t, tt.content...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp)
		})
	}
}

func TestDecode_ExtendedFrame(t *testing.T) {
	raw := []byte{ReportIDSmall, ExtendedStartFlag, AddressPCHost, AddressDefaultSecondary, 0x01, 0x01, StopFlag}

	frame, err := NewDecoder().DecodeFrame(raw)
	require.NoError(t, err)

	assert.True(t, frame.Extended)
	assert.Equal(t, byte(AddressPCHost), frame.Destination)
	assert.Equal(t, byte(AddressDefaultSecondary), frame.Source)
	assert.Equal(t, byte(0x01), frame.Status)
	assert.Equal(t, FrameOK, frame.PreviousFrameStatus())
}

func TestDecode_IntegrityErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", []byte{}, ErrMissingStartFlag},
		{"bad start flag", []byte{0x01, 0x80, 0x80, 0xF2}, ErrMissingStartFlag},
		{"no stop flag", []byte{0x01, 0xF1, 0x80, 0x80}, ErrMissingStopFlag},
		{"bad checksum", []byte{0x01, 0xF1, 0x01, 0x02, 0xF2}, ErrChecksum},
		{"dangling stuff flag", []byte{0x01, 0xF1, 0x01, 0xF3, 0xF2}, ErrTruncatedFrame},
		{"no content", []byte{0x01, 0xF1, 0xF2}, ErrTruncatedFrame},
		{"checksum only", []byte{0x01, 0xF1, 0x00, 0xF2}, ErrTruncatedFrame},
		{"extended without addresses", []byte{0x01, 0xF0, 0x00}, ErrTruncatedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := NewDecoder().DecodeFrame(tt.raw)
			assert.Nil(t, frame)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsIntegrityError(err))
		})
	}
}

func TestDecode_ChecksumCatchesEveryBitFlip(t *testing.T) {
	report, err := EncodeResponse(0x05, []ResponseRecord{
		{Key: 0xB4, Values: []interface{}{200, UnitsWatts}},
		{Key: 0xA7, Values: []interface{}{24, 0}},
		{Key: ResponseKey(WrapperSetUserCfg1, 0xA0), Values: []interface{}{123456, 7}},
	})
	require.NoError(t, err)
	frame := frameOf(t, report)

	for i := 1; i < len(frame)-1; i++ {
		if frame[i] == StuffFlag || frame[i-1] == StuffFlag {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), report...)
			flipped[1+i] ^= 1 << bit
			if isReserved(flipped[1+i]) {
				continue
			}
			_, err := Decode(flipped)
			assert.ErrorIs(t, err, ErrChecksum, "byte %d bit %d", i, bit)
		}
	}
}

func TestDecode_PreviousFrameRejected(t *testing.T) {
	tests := []struct {
		name   string
		status byte
		prev   PreviousFrameStatus
	}{
		{"rejected", 0x11, FrameRejected},
		{"bad", 0x25, FrameBad},
		{"not ready", 0xB1, FrameNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := NewDecoder().DecodeFrame(responseReport(t, tt.status, 0xB0, 0x01, 0x48))
			require.Error(t, err)

			assert.ErrorIs(t, err, ErrPreviousFrameRejected)
			var statusErr *FrameStatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.prev, statusErr.Previous())

			require.NotNil(t, frame)
			assert.Equal(t, tt.status, frame.Status)
			assert.False(t, frame.Response.Has(string(CmdGetHRCur)))
			assert.False(t, IsIntegrityError(err))
		})
	}
}

func TestDecode_LengthMismatchIsSkippedAndLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	decoder := NewDecoder(WithLogger(zap.New(core)))

	raw := responseReport(t, 0x01, 0xB4, 0x02, 0xC8, 0x00, 0xB0, 0x01, 0x48)
	frame, err := decoder.DecodeFrame(raw)
	require.NoError(t, err)

	assert.False(t, frame.Response.Has(string(CmdGetPower)))
	hr, ok := frame.Response.Uint(string(CmdGetHRCur), 0)
	assert.True(t, ok)
	assert.Equal(t, uint64(72), hr)
	assert.Equal(t, []string{string(CmdGetPower)}, frame.Skipped)

	entries := logs.FilterMessage("skipping response record").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, string(CmdGetPower), fields["response"])
	assert.Equal(t, int64(3), fields["expected"])
	assert.Equal(t, int64(2), fields["actual"])
}

func TestDecode_UnknownOpcodeReturnsPartial(t *testing.T) {
	raw := responseReport(t, 0x01, 0xB4, 0x03, 0xC8, 0x00, 0x58, 0x99, 0x00, 0xB0, 0x01, 0x48)

	resp, err := Decode(raw)
	assert.ErrorIs(t, err, ErrUnknownResponseOpcode)
	require.NotNil(t, resp)
	assert.True(t, resp.Has(string(CmdGetPower)))
	assert.False(t, resp.Has(string(CmdGetHRCur)))
}

func TestDecode_TruncatedRecord(t *testing.T) {
	raw := responseReport(t, 0x01, 0xB4, 0x05, 0xC8)

	_, err := Decode(raw)
	assert.ErrorIs(t, err, ErrTruncatedFrame)
}

// TestLoopback encodes every command, parses it as a device would, answers
// with distinct field values and checks the decoder recovers them.
func TestLoopback(t *testing.T) {
	names := Commands()
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, name := range names {
		spec, _ := LookupCommand(name)
		resp, _ := LookupResponse(spec.ResponseKey())
		if resp.Size() == 0 || name == CmdGetCaps || name == CmdGetID {
			continue
		}

		t.Run(string(name), func(t *testing.T) {
			tokens := []interface{}{name}
			for range spec.ArgWidths {
				tokens = append(tokens, 0)
			}
			request, err := Encode(tokens...)
			require.NoError(t, err)

			parsed, err := ParseRequest(request)
			require.NoError(t, err)
			require.Len(t, parsed.Commands, 1)
			assert.Equal(t, name, parsed.Commands[0].Name)

			values := make([]interface{}, len(resp.Fields))
			want := make([]interface{}, len(resp.Fields))
			for i, width := range resp.Fields {
				if width < 0 {
					text := strings.Repeat(string(rune('A'+i)), -width)
					values[i], want[i] = text, text
					continue
				}
				v := (uint64(0xF0F1F2F3) + uint64(i)) & (uint64(1)<<(8*uint(width)) - 1)
				values[i], want[i] = v, v
			}

			report, err := EncodeResponse(0x05, []ResponseRecord{{Key: spec.ResponseKey(), Values: values}})
			require.NoError(t, err)

			decoded, err := Decode(report)
			require.NoError(t, err)
			assert.Equal(t, want, decoded[resp.Name])
		})
	}
}
