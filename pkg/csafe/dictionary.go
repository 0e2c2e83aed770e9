// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package csafe

// Command is the symbolic name of a CSAFE command
type Command string

// Standard short commands
const (
	CmdSetPMCfg      Command = "CSAFE_SETPMCFG_CMD"
	CmdSetPMData     Command = "CSAFE_SETPMDATA_CMD"
	CmdGetPMCfg      Command = "CSAFE_GETPMCFG_CMD"
	CmdGetPMData     Command = "CSAFE_GETPMDATA_CMD"
	CmdGetStatus     Command = "CSAFE_GETSTATUS_CMD"
	CmdReset         Command = "CSAFE_RESET_CMD"
	CmdGoIdle        Command = "CSAFE_GOIDLE_CMD"
	CmdGoHaveID      Command = "CSAFE_GOHAVEID_CMD"
	CmdGoInUse       Command = "CSAFE_GOINUSE_CMD"
	CmdGoFinished    Command = "CSAFE_GOFINISHED_CMD"
	CmdGoReady       Command = "CSAFE_GOREADY_CMD"
	CmdBadID         Command = "CSAFE_BADID_CMD"
	CmdGetVersion    Command = "CSAFE_GETVERSION_CMD"
	CmdGetID         Command = "CSAFE_GETID_CMD"
	CmdGetUnits      Command = "CSAFE_GETUNITS_CMD"
	CmdGetSerial     Command = "CSAFE_GETSERIAL_CMD"
	CmdGetOdometer   Command = "CSAFE_GETODOMETER_CMD"
	CmdGetErrorCode  Command = "CSAFE_GETERRORCODE_CMD"
	CmdGetTWork      Command = "CSAFE_GETTWORK_CMD"
	CmdGetHorizontal Command = "CSAFE_GETHORIZONTAL_CMD"
	CmdGetCalories   Command = "CSAFE_GETCALORIES_CMD"
	CmdGetProgram    Command = "CSAFE_GETPROGRAM_CMD"
	CmdGetPace       Command = "CSAFE_GETPACE_CMD"
	CmdGetCadence    Command = "CSAFE_GETCADENCE_CMD"
	CmdGetUserInfo   Command = "CSAFE_GETUSERINFO_CMD"
	CmdGetHRCur      Command = "CSAFE_GETHRCUR_CMD"
	CmdGetPower      Command = "CSAFE_GETPOWER_CMD"
)

// Standard long commands
const (
	CmdAutoUpload    Command = "CSAFE_AUTOUPLOAD_CMD"
	CmdIDDigits      Command = "CSAFE_IDDIGITS_CMD"
	CmdSetTime       Command = "CSAFE_SETTIME_CMD"
	CmdSetDate       Command = "CSAFE_SETDATE_CMD"
	CmdSetTimeout    Command = "CSAFE_SETTIMEOUT_CMD"
	CmdSetTWork      Command = "CSAFE_SETTWORK_CMD"
	CmdSetHorizontal Command = "CSAFE_SETHORIZONTAL_CMD"
	CmdSetCalories   Command = "CSAFE_SETCALORIES_CMD"
	CmdSetProgram    Command = "CSAFE_SETPROGRAM_CMD"
	CmdSetPower      Command = "CSAFE_SETPOWER_CMD"
	CmdGetCaps       Command = "CSAFE_GETCAPS_CMD"
)

// PM proprietary commands
const (
	CmdPMGetWorkoutType          Command = "CSAFE_PM_GET_WORKOUTTYPE"
	CmdPMGetWorkoutState         Command = "CSAFE_PM_GET_WORKOUTSTATE"
	CmdPMGetIntervalType         Command = "CSAFE_PM_GET_INTERVALTYPE"
	CmdPMGetWorkoutIntervalCount Command = "CSAFE_PM_GET_WORKOUTINTERVALCOUNT"
	CmdPMGetWorkTime             Command = "CSAFE_PM_GET_WORKTIME"
	CmdPMGetWorkDistance         Command = "CSAFE_PM_GET_WORKDISTANCE"
	CmdPMGetErrorValue           Command = "CSAFE_PM_GET_ERRORVALUE"
	CmdPMGetRestTime             Command = "CSAFE_PM_GET_RESTTIME"
	CmdPMGetDragFactor           Command = "CSAFE_PM_GET_DRAGFACTOR"
	CmdPMGetStrokeState          Command = "CSAFE_PM_GET_STROKESTATE"
	CmdPMSetSplitDuration        Command = "CSAFE_PM_SET_SPLITDURATION"
	CmdPMGetForcePlotData        Command = "CSAFE_PM_GET_FORCEPLOTDATA"
	CmdPMSetScreenErrorMode      Command = "CSAFE_PM_SET_SCREENERRORMODE"
	CmdPMGetHeartbeatData        Command = "CSAFE_PM_GET_HEARTBEATDATA"
	CmdPMGetFWVersion            Command = "CSAFE_PM_GET_FW_VERSION"
	CmdPMGetHWVersion            Command = "CSAFE_PM_GET_HW_VERSION"
	CmdPMGetHWAddress            Command = "CSAFE_PM_GET_HW_ADDRESS"
	CmdPMGetTickTimebase         Command = "CSAFE_PM_GET_TICK_TIMEBASE"
	CmdPMGetHRM                  Command = "CSAFE_PM_GET_HRM"
	CmdPMGetDateTime             Command = "CSAFE_PM_GET_DATETIME"
	CmdPMGetOperationalState     Command = "CSAFE_PM_GET_OPERATIONALSTATE"
)

// Response-only names
const (
	RespSetUserCfg1 = "CSAFE_SETUSERCFG1_CMD"
)

// CommandSpec describes how a command is laid out on the wire.
// Opcodes 0x00-0x7F are long commands and carry a data byte count;
// 0x80-0xFF are short commands with no data.
type CommandSpec struct {
	Opcode    byte
	ArgWidths []int
	Wrapper   byte // 0 when the command is sent bare
}

// IsLong reports whether the command carries a byte-count prefix
func (c CommandSpec) IsLong() bool {
	return c.Opcode < 0x80
}

// IsWrapped reports whether the command travels inside a wrapper command
func (c CommandSpec) IsWrapped() bool {
	return c.Wrapper != 0
}

// ResponseKey is the dictionary key of the command's response
func (c CommandSpec) ResponseKey() uint16 {
	return ResponseKey(c.Wrapper, c.Opcode)
}

// ResponseSpec describes the fields returned for an opcode.
// A positive width is an unsigned little-endian integer of that many bytes,
// a negative width is an ASCII string of that many bytes.
type ResponseSpec struct {
	Name   string
	Fields []int
}

// Size returns the expected data byte count of the response
func (r ResponseSpec) Size() int {
	n := 0
	for _, w := range r.Fields {
		n += abs(w)
	}
	return n
}

// ResponseKey builds the response dictionary key, qualifying wrapped opcodes
// with their wrapper
func ResponseKey(wrapper, opcode byte) uint16 {
	return uint16(wrapper)<<8 | uint16(opcode)
}

var commands = map[Command]CommandSpec{
	// Short commands
	CmdGetStatus:     {Opcode: 0x80},
	CmdReset:         {Opcode: 0x81},
	CmdGoIdle:        {Opcode: 0x82},
	CmdGoHaveID:      {Opcode: 0x83},
	CmdGoInUse:       {Opcode: 0x85},
	CmdGoFinished:    {Opcode: 0x86},
	CmdGoReady:       {Opcode: 0x87},
	CmdBadID:         {Opcode: 0x88},
	CmdGetVersion:    {Opcode: 0x91},
	CmdGetID:         {Opcode: 0x92},
	CmdGetUnits:      {Opcode: 0x93},
	CmdGetSerial:     {Opcode: 0x94},
	CmdGetOdometer:   {Opcode: 0x9B},
	CmdGetErrorCode:  {Opcode: 0x9C},
	CmdGetTWork:      {Opcode: 0xA0},
	CmdGetHorizontal: {Opcode: 0xA1},
	CmdGetCalories:   {Opcode: 0xA3},
	CmdGetProgram:    {Opcode: 0xA4},
	CmdGetPace:       {Opcode: 0xA6},
	CmdGetCadence:    {Opcode: 0xA7},
	CmdGetUserInfo:   {Opcode: 0xAB},
	CmdGetHRCur:      {Opcode: 0xB0},
	CmdGetPower:      {Opcode: 0xB4},

	// Bare proprietary wrappers, sent with a zero byte count
	CmdSetPMCfg:  {Opcode: WrapperSetPMCfg},
	CmdSetPMData: {Opcode: WrapperSetPMData},
	CmdGetPMCfg:  {Opcode: WrapperGetPMCfg},
	CmdGetPMData: {Opcode: WrapperGetPMData},

	// Long commands
	CmdAutoUpload:    {Opcode: 0x01, ArgWidths: []int{1}},       // configuration
	CmdIDDigits:      {Opcode: 0x10, ArgWidths: []int{1}},       // number of digits
	CmdSetTime:       {Opcode: 0x11, ArgWidths: []int{1, 1, 1}}, // hour, minute, second
	CmdSetDate:       {Opcode: 0x12, ArgWidths: []int{1, 1, 1}}, // year-1900, month, day
	CmdSetTimeout:    {Opcode: 0x13, ArgWidths: []int{1}},       // state timeout
	CmdSetTWork:      {Opcode: 0x20, ArgWidths: []int{1, 1, 1}}, // hours, minutes, seconds
	CmdSetHorizontal: {Opcode: 0x21, ArgWidths: []int{2, 1}},    // distance, units
	CmdSetCalories:   {Opcode: 0x23, ArgWidths: []int{2}},       // total calories
	CmdSetProgram:    {Opcode: 0x24, ArgWidths: []int{1, 1}},    // workout id, unused
	CmdSetPower:      {Opcode: 0x34, ArgWidths: []int{2, 1}},    // stroke watts, units
	CmdGetCaps:       {Opcode: 0x70, ArgWidths: []int{1}},       // capability code

	// PM proprietary short commands in CSAFE_SETUSERCFG1_CMD
	CmdPMGetIntervalType:         {Opcode: 0x8E, Wrapper: WrapperSetUserCfg1},
	CmdPMGetWorkoutIntervalCount: {Opcode: 0x9F, Wrapper: WrapperSetUserCfg1},
	CmdPMGetWorkTime:             {Opcode: 0xA0, Wrapper: WrapperSetUserCfg1},
	CmdPMGetWorkDistance:         {Opcode: 0xA3, Wrapper: WrapperSetUserCfg1},
	CmdPMGetErrorValue:           {Opcode: 0xC9, Wrapper: WrapperSetUserCfg1},
	CmdPMGetRestTime:             {Opcode: 0xCF, Wrapper: WrapperSetUserCfg1},
	CmdPMGetDragFactor:           {Opcode: 0xC1, Wrapper: WrapperSetUserCfg1},
	CmdPMGetStrokeState:          {Opcode: 0xBF, Wrapper: WrapperSetUserCfg1},

	// PM proprietary long commands in CSAFE_SETUSERCFG1_CMD
	CmdPMSetSplitDuration:   {Opcode: 0x05, ArgWidths: []int{1, 4}, Wrapper: WrapperSetUserCfg1}, // time(0)/distance(128), duration
	CmdPMGetForcePlotData:   {Opcode: 0x6B, ArgWidths: []int{1}, Wrapper: WrapperSetUserCfg1},    // block length
	CmdPMSetScreenErrorMode: {Opcode: 0x27, ArgWidths: []int{1}, Wrapper: WrapperSetUserCfg1},    // disable(0)/enable(1)
	CmdPMGetHeartbeatData:   {Opcode: 0x6C, ArgWidths: []int{1}, Wrapper: WrapperSetUserCfg1},    // block length

	// PM proprietary short commands in CSAFE_GETPMCFG_CMD
	CmdPMGetFWVersion:        {Opcode: 0x80, Wrapper: WrapperGetPMCfg},
	CmdPMGetHWVersion:        {Opcode: 0x81, Wrapper: WrapperGetPMCfg},
	CmdPMGetHWAddress:        {Opcode: 0x82, Wrapper: WrapperGetPMCfg},
	CmdPMGetTickTimebase:     {Opcode: 0x83, Wrapper: WrapperGetPMCfg},
	CmdPMGetHRM:              {Opcode: 0x84, Wrapper: WrapperGetPMCfg},
	CmdPMGetDateTime:         {Opcode: 0x85, Wrapper: WrapperGetPMCfg},
	CmdPMGetWorkoutType:      {Opcode: 0x89, Wrapper: WrapperGetPMCfg},
	CmdPMGetWorkoutState:     {Opcode: 0x8D, Wrapper: WrapperGetPMCfg},
	CmdPMGetOperationalState: {Opcode: 0x8F, Wrapper: WrapperGetPMCfg},
}

var responses = map[uint16]ResponseSpec{
	// Short command responses
	0x80: {Name: string(CmdGetStatus)},
	0x81: {Name: string(CmdReset)},
	0x82: {Name: string(CmdGoIdle)},
	0x83: {Name: string(CmdGoHaveID)},
	0x85: {Name: string(CmdGoInUse)},
	0x86: {Name: string(CmdGoFinished)},
	0x87: {Name: string(CmdGoReady)},
	0x88: {Name: string(CmdBadID)},
	0x91: {Name: string(CmdGetVersion), Fields: []int{1, 1, 1, 2, 2}}, // mfg id, class id, model, hw, sw
	0x92: {Name: string(CmdGetID), Fields: []int{-5}},                 // ASCII digits, sized per message
	0x93: {Name: string(CmdGetUnits), Fields: []int{1}},
	0x94: {Name: string(CmdGetSerial), Fields: []int{-9}},
	0x9B: {Name: string(CmdGetOdometer), Fields: []int{4, 1}},   // distance, units
	0x9C: {Name: string(CmdGetErrorCode), Fields: []int{3}},
	0xA0: {Name: string(CmdGetTWork), Fields: []int{1, 1, 1}},    // hours, minutes, seconds
	0xA1: {Name: string(CmdGetHorizontal), Fields: []int{2, 1}}, // distance, units
	0xA3: {Name: string(CmdGetCalories), Fields: []int{2}},
	0xA4: {Name: string(CmdGetProgram), Fields: []int{1}},
	0xA6: {Name: string(CmdGetPace), Fields: []int{2, 1}},        // stroke pace, units
	0xA7: {Name: string(CmdGetCadence), Fields: []int{2, 1}},     // stroke rate, units
	0xAB: {Name: string(CmdGetUserInfo), Fields: []int{2, 1, 1, 1}}, // weight, units, age, gender
	0xB0: {Name: string(CmdGetHRCur), Fields: []int{1}},
	0xB4: {Name: string(CmdGetPower), Fields: []int{2, 1}}, // stroke watts, units

	// Long command responses
	0x01: {Name: string(CmdAutoUpload)},
	0x10: {Name: string(CmdIDDigits)},
	0x11: {Name: string(CmdSetTime)},
	0x12: {Name: string(CmdSetDate)},
	0x13: {Name: string(CmdSetTimeout)},
	0x20: {Name: string(CmdSetTWork)},
	0x21: {Name: string(CmdSetHorizontal)},
	0x23: {Name: string(CmdSetCalories)},
	0x24: {Name: string(CmdSetProgram)},
	0x34: {Name: string(CmdSetPower)},
	0x70: {Name: string(CmdGetCaps), Fields: []int{11}}, // sized per message

	// Wrappers
	WrapperSetUserCfg1: {Name: RespSetUserCfg1},
	WrapperSetPMCfg:    {Name: string(CmdSetPMCfg)},
	WrapperSetPMData:   {Name: string(CmdSetPMData)},
	WrapperGetPMCfg:    {Name: string(CmdGetPMCfg)},
	WrapperGetPMData:   {Name: string(CmdGetPMData)},

	// CSAFE_SETUSERCFG1_CMD short command responses
	ResponseKey(WrapperSetUserCfg1, 0x89): {Name: string(CmdPMGetWorkoutType), Fields: []int{1}},
	ResponseKey(WrapperSetUserCfg1, 0xC1): {Name: string(CmdPMGetDragFactor), Fields: []int{1}},
	ResponseKey(WrapperSetUserCfg1, 0xBF): {Name: string(CmdPMGetStrokeState), Fields: []int{1}},
	ResponseKey(WrapperSetUserCfg1, 0xA0): {Name: string(CmdPMGetWorkTime), Fields: []int{4, 1}},     // 0.01 s, fraction
	ResponseKey(WrapperSetUserCfg1, 0xA3): {Name: string(CmdPMGetWorkDistance), Fields: []int{4, 1}}, // 0.1 m, fraction
	ResponseKey(WrapperSetUserCfg1, 0xC9): {Name: string(CmdPMGetErrorValue), Fields: []int{2}},
	ResponseKey(WrapperSetUserCfg1, 0x8D): {Name: string(CmdPMGetWorkoutState), Fields: []int{1}},
	ResponseKey(WrapperSetUserCfg1, 0x9F): {Name: string(CmdPMGetWorkoutIntervalCount), Fields: []int{1}},
	ResponseKey(WrapperSetUserCfg1, 0x8E): {Name: string(CmdPMGetIntervalType), Fields: []int{1}},
	ResponseKey(WrapperSetUserCfg1, 0xCF): {Name: string(CmdPMGetRestTime), Fields: []int{2}},

	// CSAFE_SETUSERCFG1_CMD long command responses.
	// The two setters are assumed to return nothing; not yet verified on hardware.
	ResponseKey(WrapperSetUserCfg1, 0x05): {Name: string(CmdPMSetSplitDuration)},
	ResponseKey(WrapperSetUserCfg1, 0x27): {Name: string(CmdPMSetScreenErrorMode)},
	ResponseKey(WrapperSetUserCfg1, 0x6B): {Name: string(CmdPMGetForcePlotData), Fields: blockFields()}, // bytes read, data
	ResponseKey(WrapperSetUserCfg1, 0x6C): {Name: string(CmdPMGetHeartbeatData), Fields: blockFields()}, // bytes read, data

	// CSAFE_GETPMCFG_CMD responses
	ResponseKey(WrapperGetPMCfg, 0x80): {Name: string(CmdPMGetFWVersion), Fields: []int{-15}}, // ASCII
	ResponseKey(WrapperGetPMCfg, 0x81): {Name: string(CmdPMGetHWVersion), Fields: []int{-15}}, // ASCII
	ResponseKey(WrapperGetPMCfg, 0x82): {Name: string(CmdPMGetHWAddress), Fields: []int{4}},
	ResponseKey(WrapperGetPMCfg, 0x83): {Name: string(CmdPMGetTickTimebase), Fields: []int{4}},
	ResponseKey(WrapperGetPMCfg, 0x84): {Name: string(CmdPMGetHRM), Fields: []int{1, 1, 1, 2}},
	ResponseKey(WrapperGetPMCfg, 0x85): {Name: string(CmdPMGetDateTime), Fields: []int{1, 1, 1, 1, 1, 2}},
	ResponseKey(WrapperGetPMCfg, 0x89): {Name: string(CmdPMGetWorkoutType), Fields: []int{1}},
	ResponseKey(WrapperGetPMCfg, 0x8D): {Name: string(CmdPMGetWorkoutState), Fields: []int{1}},
	ResponseKey(WrapperGetPMCfg, 0x8F): {Name: string(CmdPMGetOperationalState), Fields: []int{1}},
}

// wrapperResponses are the response opcodes whose data is a nested record
var wrapperResponses = map[byte]bool{
	WrapperSetUserCfg1: true,
	WrapperSetPMCfg:    true,
	WrapperGetPMCfg:    true,
}

// blockFields is a byte count followed by sixteen 2-byte samples
func blockFields() []int {
	fields := make([]int, 17)
	fields[0] = 1
	for i := 1; i < len(fields); i++ {
		fields[i] = 2
	}
	return fields
}

// LookupCommand returns the wire layout of a named command
func LookupCommand(name Command) (CommandSpec, bool) {
	spec, ok := commands[name]
	return spec, ok
}

// LookupResponse returns the response layout for a (possibly wrapper-qualified) key
func LookupResponse(key uint16) (ResponseSpec, bool) {
	spec, ok := responses[key]
	return spec, ok
}

// CommandByOpcode finds the command name sent as opcode inside wrapper
// (0 for bare commands)
func CommandByOpcode(wrapper, opcode byte) (Command, CommandSpec, bool) {
	for name, spec := range commands {
		if spec.Opcode == opcode && spec.Wrapper == wrapper {
			return name, spec, true
		}
	}
	return "", CommandSpec{}, false
}

// Commands returns the names of every command in the dictionary
func Commands() []Command {
	names := make([]Command, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names
}

// IsWrapperOpcode reports whether a response opcode carries a nested record
func IsWrapperOpcode(opcode byte) bool {
	return wrapperResponses[opcode]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
