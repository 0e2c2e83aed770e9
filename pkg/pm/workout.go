// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pm

import (
	"context"
	"math"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

// Goal selects how a programmed workout ends
type Goal int

const (
	GoalNone     Goal = iota // just row
	GoalProgram              // stored workout program
	GoalTime                 // fixed time
	GoalDistance             // fixed distance
)

func (g Goal) String() string {
	switch g {
	case GoalNone:
		return "none"
	case GoalProgram:
		return "program"
	case GoalTime:
		return "time"
	case GoalDistance:
		return "distance"
	}
	return "unknown"
}

// Workout programming limits
const (
	MaxProgram       = 15
	MaxHours         = 9
	MinWorkoutTime   = 20 // seconds
	MinDistance      = 100
	MaxDistance      = 50000
	minSplitTime     = 2000 // 0.01 s
	minSplitDistance = 100  // meters
	maxSplitsPerGoal = 30
)

// Split duration types for CSAFE_PM_SET_SPLITDURATION
const (
	splitTypeTime     = 0
	splitTypeDistance = 128
)

// WorkoutParams describes a workout to program. Zero Split, Pace, CalPace
// and Watts mean "not set". When more than one target is set, Pace wins over
// CalPace, which wins over Watts.
type WorkoutParams struct {
	Goal     Goal
	Program  int     // GoalProgram: 0-15
	Time     []int   // GoalTime: [s], [m, s] or [h, m, s]
	Distance int     // GoalDistance: meters
	Split    float64 // seconds for time goals, meters for distance goals
	Pace     float64 // target seconds per 500 m
	CalPace  float64 // target kcal/hr
	Watts    int     // target power
}

// Commands validates the parameters and returns the batch that programs the
// workout: goal, split, power target, program and CSAFE_GOINUSE_CMD.
func (p WorkoutParams) Commands() ([]interface{}, error) {
	var batch []interface{}
	program := 0
	total := 0 // seconds, time goals only

	switch p.Goal {
	case GoalNone:
	case GoalProgram:
		if err := outOfRange("program", float64(p.Program), 0, MaxProgram); err != nil {
			return nil, err
		}
		program = p.Program
	case GoalTime:
		hms, err := normalizeTime(p.Time)
		if err != nil {
			return nil, err
		}
		total = hms[0]*3600 + hms[1]*60 + hms[2]
		if total < MinWorkoutTime {
			return nil, &ValidationError{Field: "time", Value: float64(total), Min: MinWorkoutTime, Err: ErrWorkoutTooShort}
		}
		batch = append(batch, csafe.CmdSetTWork, hms[0], hms[1], hms[2])
	case GoalDistance:
		if err := outOfRange("distance", float64(p.Distance), MinDistance, MaxDistance); err != nil {
			return nil, err
		}
		batch = append(batch, csafe.CmdSetHorizontal, p.Distance, csafe.UnitsMeters)
	default:
		return nil, outOfRange("goal", float64(p.Goal), float64(GoalNone), float64(GoalDistance))
	}

	if p.Split != 0 {
		split, splitType, err := p.split(total)
		if err != nil {
			return nil, err
		}
		batch = append(batch, csafe.CmdPMSetSplitDuration, splitType, split)
	}

	watts, ok, err := p.powerTarget()
	if err != nil {
		return nil, err
	}
	if ok {
		batch = append(batch, csafe.CmdSetPower, watts, csafe.UnitsWatts)
	}

	batch = append(batch, csafe.CmdSetProgram, program, 0, csafe.CmdGoInUse)
	return batch, nil
}

// normalizeTime left-pads a time goal to [h, m, s] and checks each component
func normalizeTime(parts []int) ([3]int, error) {
	var hms [3]int
	if len(parts) < 1 || len(parts) > 3 {
		return hms, outOfRange("time components", float64(len(parts)), 1, 3)
	}
	copy(hms[3-len(parts):], parts)

	if err := outOfRange("hours", float64(hms[0]), 0, MaxHours); err != nil {
		return hms, err
	}
	if err := outOfRange("minutes", float64(hms[1]), 0, 59); err != nil {
		return hms, err
	}
	if err := outOfRange("seconds", float64(hms[2]), 0, 59); err != nil {
		return hms, err
	}
	return hms, nil
}

// split converts the split to wire units and bounds it so a workout has at
// most 30 splits
func (p WorkoutParams) split(totalSeconds int) (int, int, error) {
	switch p.Goal {
	case GoalTime:
		split := int(math.Round(p.Split * 100))
		minSplit := int(float64(totalSeconds)/maxSplitsPerGoal*100 + 0.5)
		if minSplit < minSplitTime {
			minSplit = minSplitTime
		}
		if err := outOfRange("split time (0.01 s)", float64(split), float64(minSplit), float64(totalSeconds*100)); err != nil {
			return 0, 0, err
		}
		return split, splitTypeTime, nil
	case GoalDistance:
		split := int(math.Round(p.Split))
		minSplit := int(float64(p.Distance)/maxSplitsPerGoal + 0.5)
		if minSplit < minSplitDistance {
			minSplit = minSplitDistance
		}
		if err := outOfRange("split distance", float64(split), float64(minSplit), float64(p.Distance)); err != nil {
			return 0, 0, err
		}
		return split, splitTypeDistance, nil
	}
	return 0, 0, &ValidationError{Field: "split", Value: p.Split, Err: ErrSplitNotAllowed}
}

// powerTarget converts the pace target to watts
func (p WorkoutParams) powerTarget() (int, bool, error) {
	var watts int
	switch {
	case p.Pace < 0:
		return 0, false, outOfRange("pace", p.Pace, 0, math.MaxFloat64)
	case p.CalPace < 0:
		return 0, false, outOfRange("calpace", p.CalPace, 0, math.MaxFloat64)
	case p.Pace > 0:
		watts = int(math.Round(paceConstant / math.Pow(p.Pace/500, 3)))
	case p.CalPace > 0:
		watts = int(math.Round((p.CalPace - calorieBase) / (calorieFactor * calorieEfficiency)))
	case p.Watts != 0:
		watts = p.Watts
	default:
		return 0, false, nil
	}

	if err := outOfRange("power", float64(watts), 1, 0xFFFF); err != nil {
		return 0, false, err
	}
	return watts, true, nil
}

// SetWorkout validates the workout, resets the monitor and programs it. No
// frame is sent when validation fails.
func (s *Session) SetWorkout(ctx context.Context, p WorkoutParams) error {
	batch, err := p.Commands()
	if err != nil {
		return err
	}

	if _, err := s.Send(ctx, csafe.CmdReset); err != nil {
		return err
	}
	_, err = s.Send(ctx, batch...)
	return err
}
