// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pm

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

// Rowing power model constants
const (
	paceConstant      = 2.8    // watts = 2.8 / (pace/500)^3
	calorieFactor     = 4.0    // kcal/hr per watt, before efficiency
	calorieEfficiency = 0.8604 // kcal per watt-hour
	calorieBase       = 300.0  // resting kcal/hr
)

// Pace returns the pace in seconds per 500 m for a power in watts.
// Zero power yields zero pace.
func Pace(power uint64) float64 {
	if power == 0 {
		return 0
	}
	return math.Pow(paceConstant/float64(power), 1.0/3) * 500
}

// CaloriesPerHour returns the calorie burn rate for a power in watts.
// Zero power yields zero.
func CaloriesPerHour(power uint64) float64 {
	if power == 0 {
		return 0
	}
	return float64(power)*(calorieFactor*calorieEfficiency) + calorieBase
}

// Monitor is a snapshot of the running workout
type Monitor struct {
	Time       float64            `json:"time" yaml:"time"`         // seconds
	Distance   float64            `json:"distance" yaml:"distance"` // meters
	SPM        uint64             `json:"spm" yaml:"spm"`
	Power      uint64             `json:"power" yaml:"power"` // watts
	Pace       float64            `json:"pace" yaml:"pace"`   // seconds per 500 m
	CalHr      float64            `json:"calhr" yaml:"calhr"`
	Calories   uint64             `json:"calories" yaml:"calories"`
	HeartRate  uint64             `json:"heartrate" yaml:"heartrate"`
	Status     csafe.MachineState `json:"status" yaml:"status"`
	ForceCurve []uint64           `json:"forceplot,omitempty" yaml:"forceplot,omitempty"`
}

var monitorCommands = []interface{}{
	csafe.CmdPMGetWorkTime,
	csafe.CmdPMGetWorkDistance,
	csafe.CmdGetCadence,
	csafe.CmdGetPower,
	csafe.CmdGetCalories,
	csafe.CmdGetHRCur,
}

// GetMonitor reads the current workout values. With withForceCurve set it
// also captures the force curve of the next complete stroke.
func (s *Session) GetMonitor(ctx context.Context, withForceCurve bool) (*Monitor, error) {
	resp, err := s.Send(ctx, monitorCommands...)
	if err != nil {
		return nil, err
	}

	var m Monitor
	var fields [8]uint64
	for i, f := range []struct {
		name  csafe.Command
		index int
	}{
		{csafe.CmdPMGetWorkTime, 0},
		{csafe.CmdPMGetWorkTime, 1},
		{csafe.CmdPMGetWorkDistance, 0},
		{csafe.CmdPMGetWorkDistance, 1},
		{csafe.CmdGetCadence, 0},
		{csafe.CmdGetPower, 0},
		{csafe.CmdGetCalories, 0},
		{csafe.CmdGetHRCur, 0},
	} {
		if fields[i], err = uintField(resp, f.name, f.index); err != nil {
			return nil, err
		}
	}

	m.Time = float64(fields[0]+fields[1]) / 100
	m.Distance = float64(fields[2]+fields[3]) / 10
	m.SPM = fields[4]
	m.Power = fields[5]
	m.Pace = Pace(m.Power)
	m.CalHr = CaloriesPerHour(m.Power)
	m.Calories = fields[6]
	m.HeartRate = fields[7]
	m.Status = resp.MachineState()

	if withForceCurve {
		if m.ForceCurve, err = s.ForceCurve(ctx); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

// Workout describes the programmed workout
type Workout struct {
	UserID        string             `json:"userid" yaml:"userid"`
	Type          uint64             `json:"type" yaml:"type"`
	State         csafe.WorkoutState `json:"state" yaml:"state"`
	IntervalType  uint64             `json:"inttype" yaml:"inttype"`
	IntervalCount uint64             `json:"intcount" yaml:"intcount"`
	Status        csafe.MachineState `json:"status" yaml:"status"`
}

// GetWorkout reads the user id and workout programming
func (s *Session) GetWorkout(ctx context.Context) (*Workout, error) {
	resp, err := s.Send(ctx,
		csafe.CmdGetID,
		csafe.CmdPMGetWorkoutType,
		csafe.CmdPMGetWorkoutState,
		csafe.CmdPMGetIntervalType,
		csafe.CmdPMGetWorkoutIntervalCount,
	)
	if err != nil {
		return nil, err
	}

	w := Workout{Status: resp.MachineState()}
	if w.UserID, err = textField(resp, csafe.CmdGetID, 0); err != nil {
		return nil, err
	}
	if w.Type, err = uintField(resp, csafe.CmdPMGetWorkoutType, 0); err != nil {
		return nil, err
	}
	state, err := uintField(resp, csafe.CmdPMGetWorkoutState, 0)
	if err != nil {
		return nil, err
	}
	w.State = csafe.WorkoutState(state)
	if w.IntervalType, err = uintField(resp, csafe.CmdPMGetIntervalType, 0); err != nil {
		return nil, err
	}
	if w.IntervalCount, err = uintField(resp, csafe.CmdPMGetWorkoutIntervalCount, 0); err != nil {
		return nil, err
	}
	return &w, nil
}

// ErgInfo identifies the monitor and its link capabilities
type ErgInfo struct {
	MfgID         uint64             `json:"mfgid" yaml:"mfgid"`
	CID           uint64             `json:"cid" yaml:"cid"`
	Model         uint64             `json:"model" yaml:"model"`
	HWVersion     uint64             `json:"hwversion" yaml:"hwversion"`
	SWVersion     uint64             `json:"swversion" yaml:"swversion"`
	Serial        string             `json:"serial" yaml:"serial"`
	MaxRx         uint64             `json:"maxrx" yaml:"maxrx"`
	MaxTx         uint64             `json:"maxtx" yaml:"maxtx"`
	MinInterframe uint64             `json:"mininterframe" yaml:"mininterframe"`
	Status        csafe.MachineState `json:"status" yaml:"status"`
}

// GetErgInfo reads the version, serial number and link capabilities
func (s *Session) GetErgInfo(ctx context.Context) (*ErgInfo, error) {
	resp, err := s.Send(ctx, csafe.CmdGetVersion, csafe.CmdGetSerial, csafe.CmdGetCaps, 0)
	if err != nil {
		return nil, err
	}

	info := ErgInfo{Status: resp.MachineState()}
	for i, dst := range []*uint64{&info.MfgID, &info.CID, &info.Model, &info.HWVersion, &info.SWVersion} {
		if *dst, err = uintField(resp, csafe.CmdGetVersion, i); err != nil {
			return nil, err
		}
	}
	serial, err := textField(resp, csafe.CmdGetSerial, 0)
	if err != nil {
		return nil, err
	}
	info.Serial = strings.TrimRight(serial, " \x00")
	for i, dst := range []*uint64{&info.MaxRx, &info.MaxTx, &info.MinInterframe} {
		if *dst, err = uintField(resp, csafe.CmdGetCaps, i); err != nil {
			return nil, err
		}
	}
	return &info, nil
}

// Status is the machine state reported in the status byte
type Status struct {
	Status csafe.MachineState `json:"status" yaml:"status"`
}

// GetStatus reads the machine state
func (s *Session) GetStatus(ctx context.Context) (*Status, error) {
	resp, err := s.Send(ctx, csafe.CmdGetStatus)
	if err != nil {
		return nil, err
	}
	return &Status{Status: resp.MachineState()}, nil
}

// StateSnapshot is the machine, stroke and workout state at one instant
type StateSnapshot struct {
	Machine     csafe.MachineState     `json:"machine" yaml:"machine"`
	Stroke      csafe.StrokeState      `json:"stroke" yaml:"stroke"`
	Workout     csafe.WorkoutState     `json:"workout" yaml:"workout"`
	Operational csafe.OperationalState `json:"operational" yaml:"operational"`
}

// GetStates reads every state machine of the monitor in one batch
func (s *Session) GetStates(ctx context.Context) (*StateSnapshot, error) {
	resp, err := s.Send(ctx,
		csafe.CmdGetStatus,
		csafe.CmdPMGetStrokeState,
		csafe.CmdPMGetWorkoutState,
		csafe.CmdPMGetOperationalState,
	)
	if err != nil {
		return nil, err
	}

	snap := StateSnapshot{Machine: resp.MachineState()}
	stroke, err := uintField(resp, csafe.CmdPMGetStrokeState, 0)
	if err != nil {
		return nil, err
	}
	workout, err := uintField(resp, csafe.CmdPMGetWorkoutState, 0)
	if err != nil {
		return nil, err
	}
	op, err := uintField(resp, csafe.CmdPMGetOperationalState, 0)
	if err != nil {
		return nil, err
	}
	snap.Stroke = csafe.StrokeState(stroke)
	snap.Workout = csafe.WorkoutState(workout)
	snap.Operational = csafe.OperationalState(op)
	return &snap, nil
}

// SetClock sets the monitor time and date
func (s *Session) SetClock(ctx context.Context, t time.Time) error {
	_, err := s.Send(ctx,
		csafe.CmdSetTime, t.Hour(), t.Minute(), t.Second(),
		csafe.CmdSetDate, t.Year()-1900, int(t.Month()), t.Day(),
	)
	return err
}
