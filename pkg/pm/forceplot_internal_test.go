package pm

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

func plot(stroke csafe.StrokeState, data ...uint64) *ForcePlot {
	return &ForcePlot{Data: data, StrokeState: stroke, Status: csafe.MachineInUse}
}

func TestStrokeCapture_Feed(t *testing.T) {
	tests := []struct {
		name    string
		plots   []*ForcePlot
		results []captureResult
		samples []uint64
	}{
		{
			name:    "waiting is ignored",
			plots:   []*ForcePlot{plot(csafe.StrokeWaitMinSpeed, 1), plot(csafe.StrokeWaitAccel, 2)},
			results: []captureResult{captureContinue, captureContinue},
			samples: []uint64{},
		},
		{
			name: "drive dwell recovery",
			plots: []*ForcePlot{
				plot(csafe.StrokeDriving, 1, 2),
				plot(csafe.StrokeDwelling, 3),
				plot(csafe.StrokeRecovery, 4, 5),
			},
			results: []captureResult{captureContinue, captureContinue, captureComplete},
			samples: []uint64{1, 2, 3, 4, 5},
		},
		{
			name: "recovery before dwell",
			plots: []*ForcePlot{
				plot(csafe.StrokeRecovery, 9),
				plot(csafe.StrokeDriving, 1),
				plot(csafe.StrokeRecovery, 8),
			},
			results: []captureResult{captureContinue, captureContinue, captureContinue},
			samples: []uint64{1},
		},
		{
			name: "inactive",
			plots: []*ForcePlot{
				plot(csafe.StrokeDriving, 1),
				{Data: []uint64{2}, StrokeState: csafe.StrokeDriving, Status: csafe.MachineError},
			},
			results: []captureResult{captureContinue, captureInactive},
			samples: []uint64{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c strokeCapture
			c.reset()
			for i, p := range tt.plots {
				result, err := c.feed(p)
				require.NoError(t, err)
				assert.Equal(t, tt.results[i], result, "poll %d", i)
			}
			assert.Equal(t, tt.samples, c.samples)
		})
	}
}

func TestStrokeCapture_UnknownState(t *testing.T) {
	var c strokeCapture
	c.reset()

	_, err := c.feed(plot(csafe.StrokeState(0x42), 1))
	assert.True(t, errors.Is(err, ErrUnknownStrokeState))
	assert.Empty(t, c.samples)
}

func TestStrokeCapture_Reset(t *testing.T) {
	var c strokeCapture
	c.reset()
	_, _ = c.feed(plot(csafe.StrokeDwelling, 1))
	require.True(t, c.dwelled)

	c.reset()
	assert.False(t, c.dwelled)
	assert.Empty(t, c.samples)
	assert.NotNil(t, c.samples)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, ResultOK},
		{"transport", &TransportError{Op: "read", Err: ErrEmptyRead}, ResultTransport},
		{"construction", csafe.ErrFrameTooLong, ResultConstruction},
		{"integrity", csafe.ErrMissingStopFlag, ResultIntegrity},
		{"rejected", &csafe.FrameStatusError{Status: 0x10}, ResultRejected},
		{"unknown opcode", csafe.ErrUnknownResponseOpcode, ResultProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestStatistics(t *testing.T) {
	stats := NewStatistics()
	for _, result := range []string{ResultOK, ResultOK, ResultTransport, ResultIntegrity, ResultRejected, ResultProtocol, ResultConstruction} {
		stats.Update(result, 0)
	}
	stats.Update(ResultOK, 2)

	assert.Equal(t, uint64(8), stats.TotalExchanges)
	assert.Equal(t, uint64(3), stats.ValidExchanges)
	assert.Equal(t, uint64(5), stats.Errors())
	assert.Equal(t, uint64(1), stats.TransportErrors)
	assert.Equal(t, uint64(1), stats.IntegrityErrors)
	assert.Equal(t, uint64(1), stats.RejectedFrames)
	assert.Equal(t, uint64(1), stats.ProtocolErrors)
	assert.Equal(t, uint64(1), stats.ConstructionErrors)
	assert.Equal(t, uint64(2), stats.SkippedRecords)

	summary := stats.String()
	assert.True(t, strings.Contains(summary, "Total Exchanges:        8"))
	assert.True(t, strings.Contains(summary, "Skipped Records:        2"))

	stats.Reset()
	assert.Equal(t, uint64(0), stats.TotalExchanges)
	assert.NotContains(t, stats.String(), "Transport Errors")
}
