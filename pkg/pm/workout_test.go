package pm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

func TestWorkoutParams_Commands(t *testing.T) {
	tail := func(program int) []interface{} {
		return []interface{}{csafe.CmdSetProgram, program, 0, csafe.CmdGoInUse}
	}
	with := func(head ...interface{}) func(int) []interface{} {
		return func(program int) []interface{} {
			return append(append([]interface{}{}, head...), tail(program)...)
		}
	}

	tests := []struct {
		name    string
		params  WorkoutParams
		want    []interface{}
		wantErr error
	}{
		{
			name:   "just row",
			params: WorkoutParams{},
			want:   tail(0),
		},
		{
			name:   "stored program",
			params: WorkoutParams{Goal: GoalProgram, Program: 5},
			want:   tail(5),
		},
		{
			name:   "highest program",
			params: WorkoutParams{Goal: GoalProgram, Program: MaxProgram},
			want:   tail(MaxProgram),
		},
		{
			name:    "program out of range",
			params:  WorkoutParams{Goal: GoalProgram, Program: 16},
			wantErr: ErrOutOfRange,
		},
		{
			name:   "seconds only time goal",
			params: WorkoutParams{Goal: GoalTime, Time: []int{30}},
			want:   with(csafe.CmdSetTWork, 0, 0, 30)(0),
		},
		{
			name:   "minutes and seconds time goal",
			params: WorkoutParams{Goal: GoalTime, Time: []int{20, 0}},
			want:   with(csafe.CmdSetTWork, 0, 20, 0)(0),
		},
		{
			name:   "full time goal",
			params: WorkoutParams{Goal: GoalTime, Time: []int{9, 59, 59}},
			want:   with(csafe.CmdSetTWork, 9, 59, 59)(0),
		},
		{
			name:   "shortest time goal",
			params: WorkoutParams{Goal: GoalTime, Time: []int{20}},
			want:   with(csafe.CmdSetTWork, 0, 0, 20)(0),
		},
		{
			name:    "ten second workout is too short",
			params:  WorkoutParams{Goal: GoalTime, Time: []int{0, 0, 10}},
			wantErr: ErrWorkoutTooShort,
		},
		{
			name:    "nineteen seconds is too short",
			params:  WorkoutParams{Goal: GoalTime, Time: []int{19}},
			wantErr: ErrWorkoutTooShort,
		},
		{
			name:    "hours out of range",
			params:  WorkoutParams{Goal: GoalTime, Time: []int{10, 0, 0}},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "minutes out of range",
			params:  WorkoutParams{Goal: GoalTime, Time: []int{60, 0}},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "too many time components",
			params:  WorkoutParams{Goal: GoalTime, Time: []int{0, 0, 1, 0}},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "no time components",
			params:  WorkoutParams{Goal: GoalTime},
			wantErr: ErrOutOfRange,
		},
		{
			name:   "distance goal",
			params: WorkoutParams{Goal: GoalDistance, Distance: 2000},
			want:   with(csafe.CmdSetHorizontal, 2000, csafe.UnitsMeters)(0),
		},
		{
			name:   "shortest distance",
			params: WorkoutParams{Goal: GoalDistance, Distance: MinDistance},
			want:   with(csafe.CmdSetHorizontal, MinDistance, csafe.UnitsMeters)(0),
		},
		{
			name:   "longest distance",
			params: WorkoutParams{Goal: GoalDistance, Distance: MaxDistance},
			want:   with(csafe.CmdSetHorizontal, MaxDistance, csafe.UnitsMeters)(0),
		},
		{
			name:    "distance below minimum",
			params:  WorkoutParams{Goal: GoalDistance, Distance: 50},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "distance above maximum",
			params:  WorkoutParams{Goal: GoalDistance, Distance: 50001},
			wantErr: ErrOutOfRange,
		},
		{
			name:   "time split",
			params: WorkoutParams{Goal: GoalTime, Time: []int{20, 0}, Split: 60},
			want:   with(csafe.CmdSetTWork, 0, 20, 0, csafe.CmdPMSetSplitDuration, 0, 6000)(0),
		},
		{
			name:    "time split gives more than 30 splits",
			params:  WorkoutParams{Goal: GoalTime, Time: []int{20, 0}, Split: 30},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "time split under 20 seconds",
			params:  WorkoutParams{Goal: GoalTime, Time: []int{5, 0}, Split: 15},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "time split longer than workout",
			params:  WorkoutParams{Goal: GoalTime, Time: []int{1, 0}, Split: 61},
			wantErr: ErrOutOfRange,
		},
		{
			name:   "distance split",
			params: WorkoutParams{Goal: GoalDistance, Distance: 2000, Split: 500},
			want:   with(csafe.CmdSetHorizontal, 2000, csafe.UnitsMeters, csafe.CmdPMSetSplitDuration, 128, 500)(0),
		},
		{
			name:    "distance split longer than workout",
			params:  WorkoutParams{Goal: GoalDistance, Distance: 2000, Split: 2500},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "distance split under 100 m",
			params:  WorkoutParams{Goal: GoalDistance, Distance: 1000, Split: 50},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "split with program goal",
			params:  WorkoutParams{Goal: GoalProgram, Program: 1, Split: 500},
			wantErr: ErrSplitNotAllowed,
		},
		{
			name:    "split without goal",
			params:  WorkoutParams{Split: 500},
			wantErr: ErrSplitNotAllowed,
		},
		{
			name:   "pace target",
			params: WorkoutParams{Pace: 120},
			want:   with(csafe.CmdSetPower, 203, csafe.UnitsWatts)(0),
		},
		{
			name:   "calorie target",
			params: WorkoutParams{CalPace: 1000},
			want:   with(csafe.CmdSetPower, 203, csafe.UnitsWatts)(0),
		},
		{
			name:   "power target",
			params: WorkoutParams{Watts: 150},
			want:   with(csafe.CmdSetPower, 150, csafe.UnitsWatts)(0),
		},
		{
			name:   "pace wins over power",
			params: WorkoutParams{Pace: 120, Watts: 150},
			want:   with(csafe.CmdSetPower, 203, csafe.UnitsWatts)(0),
		},
		{
			name:    "negative pace",
			params:  WorkoutParams{Pace: -1},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "calorie target below resting rate",
			params:  WorkoutParams{CalPace: 200},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "unknown goal",
			params:  WorkoutParams{Goal: Goal(9)},
			wantErr: ErrOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.params.Commands()
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var verr *ValidationError
				assert.True(t, errors.As(err, &verr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			_, err = csafe.Encode(got...)
			assert.NoError(t, err, "batch must encode")
		})
	}
}

func TestValidationError_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "out of range",
			err:  &ValidationError{Field: "distance", Value: 50, Min: 100, Max: 50000, Err: ErrOutOfRange},
			want: "pm: distance 50 outside of range [100, 50000]",
		},
		{
			name: "too short",
			err:  &ValidationError{Field: "time", Value: 10, Min: 20, Err: ErrWorkoutTooShort},
			want: "pm: workout too short: 10 s (minimum 20 s)",
		},
		{
			name: "split",
			err:  &ValidationError{Field: "split", Value: 500, Err: ErrSplitNotAllowed},
			want: "pm: split: pm: cannot set split for current goal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
