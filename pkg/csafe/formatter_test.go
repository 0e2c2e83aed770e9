package csafe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatResponse(t *testing.T) {
	resp := Response{
		string(CmdGetStatus):         {uint64(0x05)},
		string(CmdGetPower):          {uint64(200), uint64(UnitsWatts)},
		string(CmdPMGetStrokeState):  {uint64(StrokeDriving)},
		string(CmdPMGetWorkTime):     {uint64(12345), uint64(5)},
		string(CmdGetSerial):         {"431234567"},
		string(CmdGetPMCfg):          {},
		string(CmdPMGetWorkoutState): {uint64(WorkoutRow)},
	}

	out := FormatResponse(resp)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(resp))

	assert.Contains(t, out, "GETSTATUS: 0x05 OK/In Use")
	assert.Contains(t, out, "GETPOWER: 200, 88")
	assert.Contains(t, out, "PM_GET_STROKESTATE: Drive (2)")
	assert.Contains(t, out, "PM_GET_WORKTIME: 123.50 s")
	assert.Contains(t, out, `GETSERIAL: "431234567"`)
	assert.Contains(t, out, "GETPMCFG: (no data)")
	assert.Contains(t, out, "PM_GET_WORKOUTSTATE: Workout row (1)")
}

func TestFormatFrame(t *testing.T) {
	frame := &Frame{
		ReportID: ReportIDSmall,
		Extended: true,
		Source:   AddressDefaultSecondary,
		Status:   0x81,
		Response: Response{string(CmdGetStatus): {uint64(0x81)}},
		Skipped:  []string{string(CmdGetPower)},
	}

	out := FormatFrame(frame)
	assert.Contains(t, out, "report=0x01 status=0x81 (OK, Ready)")
	assert.Contains(t, out, "src=0xFD")
	assert.Contains(t, out, "GETPOWER: skipped")
}

func TestFormatRequest(t *testing.T) {
	raw, err := Encode(CmdGetStatus, CmdPMGetForcePlotData, 32)
	require.NoError(t, err)
	req, err := ParseRequest(raw)
	require.NoError(t, err)

	out := FormatRequest(req)
	assert.Contains(t, out, "commands=2")
	assert.Contains(t, out, "GETSTATUS\n")
	assert.Contains(t, out, "PM_GET_FORCEPLOTDATA [wrapper 0x1A] [32]")
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "GETSTATUS", ShortName("CSAFE_GETSTATUS_CMD"))
	assert.Equal(t, "PM_GET_WORKTIME", ShortName("CSAFE_PM_GET_WORKTIME"))
	assert.Equal(t, "01 F1 F2", FormatHex([]byte{0x01, 0xF1, 0xF2}))
}
