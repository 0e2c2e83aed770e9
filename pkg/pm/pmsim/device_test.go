package pmsim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

// roundTrip sends a batch to the device and decodes its answer
func roundTrip(t *testing.T, d *Device, tokens ...interface{}) (*csafe.Frame, error) {
	t.Helper()
	raw, err := csafe.Encode(tokens...)
	require.NoError(t, err)

	n, err := d.Write(raw, time.Second)
	require.NoError(t, err)
	require.Equal(t, len(raw), n)

	resp, err := d.Read(csafe.MaxReportSize, time.Second)
	require.NoError(t, err)
	return csafe.NewDecoder().DecodeFrame(resp)
}

func TestDevice_Defaults(t *testing.T) {
	d := New()

	frame, err := roundTrip(t, d,
		csafe.CmdGetVersion, csafe.CmdGetSerial, csafe.CmdGetID,
		csafe.CmdPMGetFWVersion, csafe.CmdPMGetHWVersion,
	)
	require.NoError(t, err)

	assert.Equal(t, csafe.MachineReady, frame.MachineState())
	assert.Equal(t, []interface{}{uint64(22), uint64(2), uint64(5), uint64(300), uint64(3310)},
		frame.Response[string(csafe.CmdGetVersion)])
	assert.Equal(t, []interface{}{DefaultSerial}, frame.Response[string(csafe.CmdGetSerial)])
	assert.Equal(t, []interface{}{DefaultUserID}, frame.Response[string(csafe.CmdGetID)])
	assert.Equal(t, []interface{}{"PM5 32.000     "}, frame.Response[string(csafe.CmdPMGetFWVersion)])
}

func TestDevice_StateCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  csafe.Command
		want csafe.MachineState
	}{
		{"idle", csafe.CmdGoIdle, csafe.MachineIdle},
		{"have id", csafe.CmdGoHaveID, csafe.MachineHaveID},
		{"in use", csafe.CmdGoInUse, csafe.MachineInUse},
		{"finished", csafe.CmdGoFinished, csafe.MachineFinish},
		{"ready", csafe.CmdGoReady, csafe.MachineReady},
		{"reset", csafe.CmdReset, csafe.MachineReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			d.SetMachineState(csafe.MachinePause)

			frame, err := roundTrip(t, d, tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, frame.MachineState())
			assert.Equal(t, tt.want, d.MachineState())
		})
	}
}

func TestDevice_Settings(t *testing.T) {
	d := New()

	_, err := roundTrip(t, d, csafe.CmdSetTWork, 0, 20, 0, csafe.CmdPMSetSplitDuration, 0, 6000)
	require.NoError(t, err)

	work, ok := d.Setting(csafe.CmdSetTWork)
	require.True(t, ok)
	assert.Equal(t, []uint64{0, 20, 0}, work)
	split, ok := d.Setting(csafe.CmdPMSetSplitDuration)
	require.True(t, ok)
	assert.Equal(t, []uint64{0, 6000}, split)

	_, err = roundTrip(t, d, csafe.CmdReset)
	require.NoError(t, err)
	_, ok = d.Setting(csafe.CmdSetTWork)
	assert.False(t, ok, "reset clears settings")
}

func TestDevice_Set(t *testing.T) {
	d := New()
	require.NoError(t, d.Set(csafe.CmdGetHRCur, 151))
	assert.ErrorIs(t, d.Set(csafe.Command("CSAFE_NOPE_CMD"), 1), csafe.ErrUnknownCommand)

	frame, err := roundTrip(t, d, csafe.CmdGetHRCur)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{uint64(151)}, frame.Response[string(csafe.CmdGetHRCur)])
}

func TestDevice_Script(t *testing.T) {
	d := New()
	d.QueueSamples(Sample{Machine: csafe.MachineInUse, Stroke: csafe.StrokeDriving, Force: []uint16{300, 400}})

	frame, err := roundTrip(t, d, csafe.CmdPMGetForcePlotData, 32, csafe.CmdPMGetStrokeState)
	require.NoError(t, err)

	plot := frame.Response.Uints(string(csafe.CmdPMGetForcePlotData))
	require.Len(t, plot, 17)
	assert.Equal(t, []uint64{4, 300, 400, 0}, plot[:4])
	assert.Equal(t, []interface{}{uint64(csafe.StrokeDriving)}, frame.Response[string(csafe.CmdPMGetStrokeState)])
	assert.Equal(t, csafe.MachineInUse, frame.MachineState())

	// An empty script keeps reporting the last stroke state
	frame, err = roundTrip(t, d, csafe.CmdPMGetStrokeState)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{uint64(csafe.StrokeDriving)}, frame.Response[string(csafe.CmdPMGetStrokeState)])
}

func TestDevice_Faults(t *testing.T) {
	unplugged := errors.New("unplugged")

	t.Run("write", func(t *testing.T) {
		d := New()
		d.FailNextWrite(unplugged)
		_, err := d.Write([]byte{0x01, 0xF1, 0x80, 0x80, 0xF2}, time.Second)
		assert.ErrorIs(t, err, unplugged)
		assert.Empty(t, d.Requests())
	})

	t.Run("read", func(t *testing.T) {
		d := New()
		d.FailNextRead(unplugged)
		_, err := d.Write([]byte{0x01, 0xF1, 0x80, 0x80, 0xF2}, time.Second)
		require.NoError(t, err)
		_, err = d.Read(csafe.MaxReportSize, time.Second)
		assert.ErrorIs(t, err, unplugged)
		_, err = d.Read(csafe.MaxReportSize, time.Second)
		assert.ErrorIs(t, err, ErrTimeout, "the response was lost")
	})

	t.Run("corrupt", func(t *testing.T) {
		d := New()
		d.CorruptNext()
		_, err := roundTrip(t, d, csafe.CmdGetStatus)
		assert.ErrorIs(t, err, csafe.ErrChecksum)
		_, err = roundTrip(t, d, csafe.CmdGetStatus)
		assert.NoError(t, err)
	})

	t.Run("reject", func(t *testing.T) {
		d := New()
		d.RejectNext()
		frame, err := roundTrip(t, d, csafe.CmdGetPower)
		assert.ErrorIs(t, err, csafe.ErrPreviousFrameRejected)
		require.NotNil(t, frame)
		assert.Equal(t, csafe.FrameRejected, frame.PreviousFrameStatus())
	})

	t.Run("malformed request", func(t *testing.T) {
		d := New()
		_, err := d.Write([]byte{0x01, 0xF1, 0x80, 0x81, 0xF2}, time.Second)
		require.NoError(t, err)
		raw, err := d.Read(csafe.MaxReportSize, time.Second)
		require.NoError(t, err)
		frame, err := csafe.NewDecoder().DecodeFrame(raw)
		assert.ErrorIs(t, err, csafe.ErrPreviousFrameRejected)
		require.NotNil(t, frame)
		assert.Equal(t, csafe.FrameBad, frame.PreviousFrameStatus())
	})

	t.Run("closed", func(t *testing.T) {
		d := New()
		require.NoError(t, d.Close())
		_, err := d.Write([]byte{0x01, 0xF1, 0x80, 0x80, 0xF2}, time.Second)
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("read without request", func(t *testing.T) {
		d := New()
		_, err := d.Read(csafe.MaxReportSize, time.Second)
		assert.ErrorIs(t, err, ErrTimeout)
	})
}

func TestRowingModel(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	r := newRowingModel(200, 24, func() time.Time { return now })
	now = start.Add(60 * time.Second)

	workTime, ok := r.values(csafe.CmdPMGetWorkTime)
	require.True(t, ok)
	assert.Equal(t, []interface{}{uint64(6000), uint64(0)}, workTime)

	power, ok := r.values(csafe.CmdGetPower)
	require.True(t, ok)
	assert.Equal(t, []interface{}{uint64(200), uint64(csafe.UnitsWatts)}, power)

	distance, ok := r.values(csafe.CmdPMGetWorkDistance)
	require.True(t, ok)
	// 200 W is roughly a 1:59.6 pace, about 250 m per minute
	assert.InDelta(t, 2500, float64(distance[0].(uint64)), 15)

	_, ok = r.values(csafe.CmdGetSerial)
	assert.False(t, ok)

	var states []csafe.StrokeState
	for i := 0; i < len(strokeCycle)+1; i++ {
		s := r.next()
		states = append(states, s.Stroke)
		assert.Equal(t, csafe.MachineInUse, s.Machine)
		if s.Stroke == csafe.StrokeRecovery {
			assert.Empty(t, s.Force)
		} else {
			assert.Len(t, s.Force, 8)
		}
	}
	assert.Equal(t, csafe.StrokeDriving, states[len(strokeCycle)], "cycle repeats")
}
