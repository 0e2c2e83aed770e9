package csafe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name   string
		tokens []interface{}
		names  []Command
		args   [][]uint64
	}{
		{
			name:   "monitor batch",
			tokens: []interface{}{CmdPMGetWorkTime, CmdPMGetWorkDistance, CmdGetCadence, CmdGetPower, CmdGetCalories, CmdGetHRCur},
			names:  []Command{CmdPMGetWorkTime, CmdPMGetWorkDistance, CmdGetCadence, CmdGetPower, CmdGetCalories, CmdGetHRCur},
			args:   [][]uint64{{}, {}, {}, {}, {}, {}},
		},
		{
			name:   "clock",
			tokens: []interface{}{CmdSetTime, 13, 45, 7, CmdSetDate, 126, 10, 19},
			names:  []Command{CmdSetTime, CmdSetDate},
			args:   [][]uint64{{13, 45, 7}, {126, 10, 19}},
		},
		{
			name:   "workout programming",
			tokens: []interface{}{CmdSetHorizontal, 2000, UnitsMeters, CmdPMSetSplitDuration, 128, 500, CmdSetPower, 200, UnitsWatts, CmdSetProgram, 0, 0, CmdGoInUse},
			names:  []Command{CmdSetHorizontal, CmdPMSetSplitDuration, CmdSetPower, CmdSetProgram, CmdGoInUse},
			args:   [][]uint64{{2000, UnitsMeters}, {128, 500}, {200, UnitsWatts}, {0, 0}, {}},
		},
		{
			name:   "bare wrapper",
			tokens: []interface{}{CmdGetPMCfg, CmdGetStatus},
			names:  []Command{CmdGetPMCfg, CmdGetStatus},
			args:   [][]uint64{{}, {}},
		},
		{
			name:   "reserved argument bytes",
			tokens: []interface{}{CmdSetCalories, 0xF3F0},
			names:  []Command{CmdSetCalories},
			args:   [][]uint64{{0xF3F0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.tokens...)
			require.NoError(t, err)

			req, err := ParseRequest(raw)
			require.NoError(t, err)
			assert.Equal(t, raw[0], req.ReportID)
			assert.Equal(t, tt.names, req.Names())
			for i, c := range req.Commands {
				assert.Equal(t, tt.args[i], c.Args, "command %s", c.Name)
			}
		})
	}
}

func TestParseRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"short", []byte{0x01}, ErrMissingStartFlag},
		{"no stop flag", []byte{0x01, 0xF1, 0x80, 0x80}, ErrMissingStopFlag},
		{"checksum", []byte{0x01, 0xF1, 0x80, 0x81, 0xF2}, ErrChecksum},
		{"unknown opcode", []byte{0x01, 0xF1, 0x84, 0x84, 0xF2}, ErrUnknownCommand},
		{"truncated long command", []byte{0x01, 0xF1, 0x24, 0x02, 0x26, 0xF2}, ErrTruncatedFrame},
		{"wrong argument bytes", []byte{0x01, 0xF1, 0x24, 0x01, 0x05, 0x20, 0xF2}, ErrFieldLengthMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeResponse_GroupsWrappedRecords(t *testing.T) {
	report, err := EncodeResponse(0x05, []ResponseRecord{
		{Key: ResponseKey(WrapperSetUserCfg1, 0xA0), Values: []interface{}{100, 0}},
		{Key: ResponseKey(WrapperSetUserCfg1, 0xBF), Values: []interface{}{uint64(StrokeRecovery)}},
		{Key: 0xB0, Values: []interface{}{65}},
	})
	require.NoError(t, err)
	assert.Equal(t, byte(ReportIDSmall), report[0])

	frame := frameOf(t, report)
	body, err := UnstuffBytes(frame[1 : len(frame)-1])
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x05,
		0x1A, 0x0A, 0xA0, 0x05, 0x64, 0x00, 0x00, 0x00, 0x00, 0xBF, 0x01, 0x04,
		0xB0, 0x01, 0x41,
	}, body[:len(body)-1])
}

func TestEncodeResponse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records []ResponseRecord
		want    error
	}{
		{"unknown key", []ResponseRecord{{Key: 0x99}}, ErrUnknownResponseOpcode},
		{"too few values", []ResponseRecord{{Key: 0xB4, Values: []interface{}{200}}}, ErrArgumentRange},
		{"value too wide", []ResponseRecord{{Key: 0xB0, Values: []interface{}{300}}}, ErrArgumentRange},
		{"text too long", []ResponseRecord{{Key: 0x94, Values: []interface{}{"0123456789"}}}, ErrArgumentRange},
		{"identity not text", []ResponseRecord{{Key: 0x92, Values: []interface{}{12}}}, ErrArgumentRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeResponse(0x01, tt.records)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEncodeResponse_PadsShortText(t *testing.T) {
	report, err := EncodeResponse(0x01, []ResponseRecord{{Key: 0x94, Values: []interface{}{"4312"}}})
	require.NoError(t, err)

	resp, err := Decode(report)
	require.NoError(t, err)
	serial, ok := resp.Text(string(CmdGetSerial), 0)
	require.True(t, ok)
	assert.Equal(t, "4312     ", serial)
}
