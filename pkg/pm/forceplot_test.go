package pm_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/ergostat/pkg/csafe"
	"github.com/Thermoquad/ergostat/pkg/pm"
	"github.com/Thermoquad/ergostat/pkg/pm/pmsim"
)

func rowing(stroke csafe.StrokeState, force ...uint16) pmsim.Sample {
	return pmsim.Sample{Machine: csafe.MachineInUse, Stroke: stroke, Force: force}
}

func TestSession_GetForcePlot(t *testing.T) {
	s, dev := newTestSession(t)
	dev.QueueSamples(rowing(csafe.StrokeDriving, 10, 20, 30))

	plot, err := s.GetForcePlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20, 30}, plot.Data)
	assert.Equal(t, csafe.StrokeDriving, plot.StrokeState)
	assert.Equal(t, csafe.MachineInUse, plot.Status)

	requests := dev.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, []csafe.Command{csafe.CmdPMGetForcePlotData, csafe.CmdPMGetStrokeState}, requests[0].Names())
	assert.Equal(t, []uint64{32}, requests[0].Commands[0].Args)
}

func TestSession_ForceCurve(t *testing.T) {
	tests := []struct {
		name      string
		samples   []pmsim.Sample
		want      []uint64
		wantErr   error
		wantPolls int
		remaining int
	}{
		{
			name: "one stroke",
			samples: []pmsim.Sample{
				rowing(csafe.StrokeWaitMinSpeed, 1, 2),
				rowing(csafe.StrokeDriving, 10, 20),
				rowing(csafe.StrokeDriving, 30, 40),
				rowing(csafe.StrokeDwelling, 50),
				rowing(csafe.StrokeRecovery, 60),
				rowing(csafe.StrokeRecovery, 70),
			},
			want:      []uint64{10, 20, 30, 40, 50, 60},
			wantPolls: 5,
			remaining: 1,
		},
		{
			name: "stale recovery is skipped",
			samples: []pmsim.Sample{
				rowing(csafe.StrokeRecovery, 5),
				rowing(csafe.StrokeWaitAccel),
				rowing(csafe.StrokeDriving, 10),
				rowing(csafe.StrokeDwelling, 20),
				rowing(csafe.StrokeRecovery, 30),
			},
			want:      []uint64{10, 20, 30},
			wantPolls: 5,
		},
		{
			name: "rowing stops mid stroke",
			samples: []pmsim.Sample{
				rowing(csafe.StrokeDriving, 10, 20),
				{Machine: csafe.MachineError, Stroke: csafe.StrokeWaitMinSpeed},
				rowing(csafe.StrokeDriving, 99),
			},
			want:      []uint64{10, 20},
			wantPolls: 2,
			remaining: 1,
		},
		{
			name: "not rowing",
			samples: []pmsim.Sample{
				{Machine: csafe.MachineError, Stroke: csafe.StrokeDriving, Force: []uint16{7}},
			},
			want:      []uint64{},
			wantPolls: 1,
		},
		{
			name: "unknown stroke state",
			samples: []pmsim.Sample{
				rowing(csafe.StrokeDriving, 10),
				rowing(csafe.StrokeState(9), 11),
			},
			want:      []uint64{10},
			wantErr:   pm.ErrUnknownStrokeState,
			wantPolls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev := newTestSession(t)
			dev.SetMachineState(csafe.MachineInUse)
			dev.QueueSamples(tt.samples...)

			got, err := s.ForceCurve(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Len(t, dev.Requests(), tt.wantPolls)

			// Whatever was not consumed is still queued for the next poll
			for i := 0; i < tt.remaining; i++ {
				plot, err := s.GetForcePlot(context.Background())
				require.NoError(t, err)
				assert.Equal(t, tt.samples[len(tt.samples)-tt.remaining+i].Stroke, plot.StrokeState)
			}
		})
	}
}

func TestSession_ForceCurveIndependentCalls(t *testing.T) {
	s, dev := newTestSession(t)
	dev.QueueSamples(
		rowing(csafe.StrokeDriving, 10),
		rowing(csafe.StrokeDwelling, 20),
		rowing(csafe.StrokeRecovery, 30),
		rowing(csafe.StrokeDriving, 40),
		rowing(csafe.StrokeDwelling, 50),
		rowing(csafe.StrokeRecovery, 60),
	)

	first, err := s.ForceCurve(context.Background())
	require.NoError(t, err)
	second, err := s.ForceCurve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint64{10, 20, 30}, first)
	assert.Equal(t, []uint64{40, 50, 60}, second, "no samples carry over between captures")
}

func TestSession_ForceCurveRowingModel(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := pm.NewMetrics(reg)
	s := pm.NewSession(pmsim.New(pmsim.WithRowing(200, 24)), pm.WithFrameGap(0), pm.WithMetrics(metrics))

	for i := 0; i < 3; i++ {
		curve, err := s.ForceCurve(context.Background())
		require.NoError(t, err)
		// Three drive polls and one dwell of eight samples, recovery carries none
		assert.Len(t, curve, 32, "stroke %d", i)
		assert.Equal(t, uint64(0), curve[0], "stroke %d starts at rest", i)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Strokes))
	assert.Equal(t, 96.0, testutil.ToFloat64(metrics.ForceSamples))
}

func TestSession_ForceCurveCanceled(t *testing.T) {
	s, dev := newTestSession(t)
	dev.SetMachineState(csafe.MachineInUse)
	dev.SetStrokeState(csafe.StrokeWaitMinSpeed)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.ForceCurve(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
