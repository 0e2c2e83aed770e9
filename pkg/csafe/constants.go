// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package csafe implements the CSAFE frame protocol spoken by Concept2
// performance monitors.
//
// The package is split into a static command/response dictionary, a frame
// encoder that turns command names and literal arguments into a padded
// transmission report, and a frame decoder that turns a received report back
// into a map of response names to field values.
package csafe

// Frame flags
const (
	ExtendedStartFlag = 0xF0
	StandardStartFlag = 0xF1
	StopFlag          = 0xF2
	StuffFlag         = 0xF3

	stuffMask = 0x03
)

// Frame and report size limits
const (
	MaxFrameSize = 96

	ReportSizeSmall  = 21
	ReportSizeMedium = 63
	ReportSizeLarge  = 121

	MaxReportSize = ReportSizeLarge
)

// Report IDs select the fixed transmission size
const (
	ReportIDSmall  = 0x01
	ReportIDMedium = 0x04
	ReportIDLarge  = 0x02
)

// Status byte bit-mapping
const (
	MaskFrameToggle         = 0x80
	MaskPreviousFrameStatus = 0x30
	MaskMachineState        = 0x0F
)

// Command wrappers carrying PM proprietary commands
const (
	WrapperSetUserCfg1 = 0x1A
	WrapperSetPMCfg    = 0x76
	WrapperSetPMData   = 0x77
	WrapperGetPMCfg    = 0x7E
	WrapperGetPMData   = 0x7F
)

// Unit specifiers
const (
	UnitsMeters = 36
	UnitsWatts  = 88
)

// Extended frame addresses
const (
	AddressPCHost           = 0x00
	AddressDefaultSecondary = 0xFD
	AddressBroadcast        = 0xFF
)

// PreviousFrameStatus is the masked previous-frame field of the status byte
type PreviousFrameStatus uint8

// Previous frame status values
const (
	FrameOK       PreviousFrameStatus = 0x00
	FrameRejected PreviousFrameStatus = 0x10
	FrameBad      PreviousFrameStatus = 0x20
	FrameNotReady PreviousFrameStatus = 0x30
)

func (s PreviousFrameStatus) String() string {
	switch s {
	case FrameOK:
		return "OK"
	case FrameRejected:
		return "REJECTED"
	case FrameBad:
		return "BAD"
	case FrameNotReady:
		return "NOT_READY"
	}
	return "UNKNOWN"
}

// MachineState is the low nibble of the status byte
type MachineState uint8

// Machine state values
const (
	MachineError   MachineState = 0x00
	MachineReady   MachineState = 0x01
	MachineIdle    MachineState = 0x02
	MachineHaveID  MachineState = 0x03
	MachineInUse   MachineState = 0x05
	MachinePause   MachineState = 0x06
	MachineFinish  MachineState = 0x07
	MachineManual  MachineState = 0x08
	MachineOffline MachineState = 0x09
)

func (s MachineState) String() string {
	switch s {
	case MachineError:
		return "Error"
	case MachineReady:
		return "Ready"
	case MachineIdle:
		return "Idle"
	case MachineHaveID:
		return "Have ID"
	case MachineInUse:
		return "In Use"
	case MachinePause:
		return "Pause"
	case MachineFinish:
		return "Finished"
	case MachineManual:
		return "Manual"
	case MachineOffline:
		return "Offline"
	}
	return "N/A"
}

// StrokeState is the rowing phase reported by CSAFE_PM_GET_STROKESTATE
type StrokeState uint8

// Stroke state values
const (
	StrokeWaitMinSpeed StrokeState = 0x00
	StrokeWaitAccel    StrokeState = 0x01
	StrokeDriving      StrokeState = 0x02
	StrokeDwelling     StrokeState = 0x03
	StrokeRecovery     StrokeState = 0x04
)

func (s StrokeState) String() string {
	switch s {
	case StrokeWaitMinSpeed:
		return "Wait for min speed"
	case StrokeWaitAccel:
		return "Wait for acceleration"
	case StrokeDriving:
		return "Drive"
	case StrokeDwelling:
		return "Dwelling"
	case StrokeRecovery:
		return "Recovery"
	}
	return "Unknown"
}

// OperationalState is reported by CSAFE_PM_GET_OPERATIONALSTATE
type OperationalState uint8

// Operational state values
const (
	OpReset            OperationalState = 0x00
	OpReady            OperationalState = 0x01
	OpWorkout          OperationalState = 0x02
	OpWarmup           OperationalState = 0x03
	OpRace             OperationalState = 0x04
	OpPowerOff         OperationalState = 0x05
	OpPause            OperationalState = 0x06
	OpInvokeBootloader OperationalState = 0x07
	OpPowerOffShip     OperationalState = 0x08
	OpIdleCharge       OperationalState = 0x09
	OpIdle             OperationalState = 0x0A
	OpMfgTest          OperationalState = 0x0B
	OpFWUpdate         OperationalState = 0x0C
	OpDragFactor       OperationalState = 0x0D
	OpDFCalibration    OperationalState = 0x64
)

var operationalStateNames = map[OperationalState]string{
	OpReset:            "Reset",
	OpReady:            "Ready",
	OpWorkout:          "Workout",
	OpWarmup:           "Warmup",
	OpRace:             "Race",
	OpPowerOff:         "Power off",
	OpPause:            "Pause",
	OpInvokeBootloader: "Invoke bootloader",
	OpPowerOffShip:     "Power off (ship)",
	OpIdleCharge:       "Idle charge",
	OpIdle:             "Idle",
	OpMfgTest:          "Manufacturing test",
	OpFWUpdate:         "Firmware update",
	OpDragFactor:       "Drag factor",
	OpDFCalibration:    "Drag factor calibration",
}

func (s OperationalState) String() string {
	if name, ok := operationalStateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// WorkoutState is reported by CSAFE_PM_GET_WORKOUTSTATE
type WorkoutState uint8

// Workout state values
const (
	WorkoutWaitToBegin WorkoutState = iota
	WorkoutRow
	WorkoutCountdownPause
	WorkoutIntervalRest
	WorkoutIntervalWorkTime
	WorkoutIntervalWorkDistance
	WorkoutIntervalRestEndToWorkTime
	WorkoutIntervalRestEndToWorkDistance
	WorkoutIntervalWorkTimeToRest
	WorkoutIntervalWorkDistanceToRest
	WorkoutEnd
	WorkoutTerminate
	WorkoutLogged
	WorkoutRearm
)

var workoutStateNames = []string{
	"Waiting begin",
	"Workout row",
	"Countdown pause",
	"Interval rest",
	"Work time interval",
	"Work distance interval",
	"Rest end time",
	"Rest end distance",
	"Time end rest",
	"Distance end rest",
	"Workout end",
	"Workout terminate",
	"Workout logged",
	"Workout rearm",
}

func (s WorkoutState) String() string {
	if int(s) < len(workoutStateNames) {
		return workoutStateNames[s]
	}
	return "Unknown"
}
