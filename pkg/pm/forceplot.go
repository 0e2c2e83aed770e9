// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

// forcePlotBlockLength is the number of force plot bytes requested per poll
const forcePlotBlockLength = 32

// rowingInactive is the machine state reported while nobody is rowing
const rowingInactive = csafe.MachineError

// ForcePlot is one poll of force samples and the stroke phase they belong to
type ForcePlot struct {
	Data        []uint64           `json:"forceplot" yaml:"forceplot"`
	StrokeState csafe.StrokeState  `json:"strokestate" yaml:"strokestate"`
	Status      csafe.MachineState `json:"status" yaml:"status"`
}

// GetForcePlot polls the force samples gathered since the previous poll
// together with the current stroke state
func (s *Session) GetForcePlot(ctx context.Context) (*ForcePlot, error) {
	resp, err := s.Send(ctx,
		csafe.CmdPMGetForcePlotData, forcePlotBlockLength,
		csafe.CmdPMGetStrokeState,
	)
	if err != nil {
		return nil, err
	}

	values := resp.Uints(string(csafe.CmdPMGetForcePlotData))
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, csafe.CmdPMGetForcePlotData)
	}
	end := 1 + int(values[0]/2)
	if end > len(values) {
		end = len(values)
	}

	stroke, err := uintField(resp, csafe.CmdPMGetStrokeState, 0)
	if err != nil {
		return nil, err
	}

	return &ForcePlot{
		Data:        append([]uint64{}, values[1:end]...),
		StrokeState: csafe.StrokeState(stroke),
		Status:      resp.MachineState(),
	}, nil
}

type captureResult int

const (
	captureContinue captureResult = iota
	captureComplete
	captureInactive
)

// strokeCapture accumulates the force samples of one stroke: every driving
// and dwelling sample plus the first recovery sample after a dwell.
type strokeCapture struct {
	samples []uint64
	dwelled bool
}

func (c *strokeCapture) reset() {
	c.samples = []uint64{}
	c.dwelled = false
}

func (c *strokeCapture) feed(p *ForcePlot) (captureResult, error) {
	if p.Status == rowingInactive {
		return captureInactive, nil
	}

	switch p.StrokeState {
	case csafe.StrokeWaitMinSpeed, csafe.StrokeWaitAccel:
		return captureContinue, nil
	case csafe.StrokeDriving:
		c.samples = append(c.samples, p.Data...)
		return captureContinue, nil
	case csafe.StrokeDwelling:
		c.samples = append(c.samples, p.Data...)
		c.dwelled = true
		return captureContinue, nil
	case csafe.StrokeRecovery:
		// A recovery before any dwell is the tail of the previous stroke
		if !c.dwelled {
			return captureContinue, nil
		}
		c.samples = append(c.samples, p.Data...)
		return captureComplete, nil
	}
	return captureContinue, fmt.Errorf("%w: %d", ErrUnknownStrokeState, p.StrokeState)
}

// ForceCurve polls force plot data until one stroke has been captured from
// drive through the start of recovery, and returns its samples. It returns
// early with whatever was gathered when the monitor reports rowing inactive.
func (s *Session) ForceCurve(ctx context.Context) ([]uint64, error) {
	var capture strokeCapture
	capture.reset()
	polls := 0

	for {
		if err := ctx.Err(); err != nil {
			return capture.samples, err
		}

		plot, err := s.GetForcePlot(ctx)
		if err != nil {
			return capture.samples, err
		}
		polls++

		result, err := capture.feed(plot)
		if err != nil {
			return capture.samples, err
		}

		switch result {
		case captureInactive:
			s.logger.Debug("force curve: rowing inactive",
				zap.Int("polls", polls),
				zap.Int("samples", len(capture.samples)))
			return capture.samples, nil
		case captureComplete:
			s.logger.Debug("force curve: stroke complete",
				zap.Int("polls", polls),
				zap.Int("samples", len(capture.samples)))
			if s.metrics != nil {
				s.metrics.Strokes.Inc()
				s.metrics.ForceSamples.Add(float64(len(capture.samples)))
			}
			return capture.samples, nil
		}
	}
}
