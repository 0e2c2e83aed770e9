// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pmsim simulates a performance monitor behind the pm.Transport
// boundary. It parses every request frame, applies state changes, and answers
// with a correctly framed response built from configurable values, a scripted
// stroke sequence, or a continuous rowing model.
package pmsim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/csafe"
	"github.com/Thermoquad/ergostat/pkg/pm"
)

var (
	ErrTimeout = errors.New("pmsim: read timeout")
	ErrClosed  = errors.New("pmsim: device closed")
)

// Default identity of a simulated monitor
const (
	DefaultSerial = "431234567"
	DefaultUserID = "00000"
)

// Sample is what the device reports for one force plot poll
type Sample struct {
	Machine csafe.MachineState
	Stroke  csafe.StrokeState
	Force   []uint16
}

// Option configures a Device
type Option func(*Device)

// WithLogger sets the device logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Device) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRowing starts the continuous rowing model at the given power and
// stroke rate
func WithRowing(watts, spm int) Option {
	return func(d *Device) {
		d.SetRowing(watts, spm)
	}
}

// Device is a simulated monitor. It is safe for concurrent use.
type Device struct {
	mu      sync.Mutex
	logger  *zap.Logger
	machine csafe.MachineState
	stroke  csafe.StrokeState
	toggle  bool
	closed  bool

	values   map[uint16][]interface{}
	settings map[csafe.Command][]uint64
	script   []Sample
	requests []*csafe.Request
	pending  []byte

	rowing *rowingModel

	failWrite   error
	failRead    error
	corruptNext bool
	rejectNext  bool
}

// New creates a simulated monitor in the Ready state
func New(opts ...Option) *Device {
	d := &Device{
		logger:   zap.NewNop(),
		machine:  csafe.MachineReady,
		values:   map[uint16][]interface{}{},
		settings: map[csafe.Command][]uint64{},
	}
	d.setDefaults()
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ pm.Transport = (*Device)(nil)

func (d *Device) setDefaults() {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(d.setLocked(csafe.CmdGetVersion, 22, 2, 5, 300, 3310))
	must(d.setLocked(csafe.CmdGetSerial, DefaultSerial))
	must(d.setLocked(csafe.CmdGetUnits, csafe.UnitsMeters))
	must(d.setLocked(csafe.CmdGetPower, 0, csafe.UnitsWatts))
	must(d.setLocked(csafe.CmdPMGetFWVersion, "PM5 32.000"))
	must(d.setLocked(csafe.CmdPMGetHWVersion, "PM5 634"))
}

// Write receives one request report
func (d *Device) Write(p []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if err := d.failWrite; err != nil {
		d.failWrite = nil
		return 0, err
	}

	req, err := csafe.ParseRequest(p)
	if err != nil {
		d.logger.Warn("rejecting malformed request", zap.Error(err))
		d.pending = d.frame(uint8(csafe.FrameBad), nil)
		return len(p), nil
	}
	d.requests = append(d.requests, req)

	records := make([]csafe.ResponseRecord, 0, len(req.Commands))
	sample, polled := d.poll(req)
	for _, c := range req.Commands {
		d.apply(c)
		records = append(records, csafe.ResponseRecord{
			Key:    c.Spec.ResponseKey(),
			Values: d.valuesFor(c, sample),
		})
	}
	if polled {
		d.machine = sample.Machine
	}

	prev := csafe.FrameOK
	if d.rejectNext {
		d.rejectNext = false
		prev = csafe.FrameRejected
		records = nil
	}
	d.pending = d.frame(uint8(prev), records)
	return len(p), nil
}

// Read returns the response to the last request
func (d *Device) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if err := d.failRead; err != nil {
		d.failRead = nil
		d.pending = nil
		return nil, err
	}
	if d.pending == nil {
		return nil, ErrTimeout
	}

	out := d.pending
	d.pending = nil
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out, nil
}

// Close marks the device closed; later reads and writes fail
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// frame builds a response report with the toggle, previous-frame status and
// machine state in the status byte
func (d *Device) frame(prev uint8, records []csafe.ResponseRecord) []byte {
	d.toggle = !d.toggle
	status := prev | uint8(d.machine)
	if d.toggle {
		status |= csafe.MaskFrameToggle
	}

	raw, err := csafe.EncodeResponse(status, records)
	if err != nil {
		d.logger.Error("cannot encode response", zap.Error(err))
		raw, _ = csafe.EncodeResponse(status, nil)
	}

	if d.corruptNext {
		d.corruptNext = false
		// Flip a bit of the status byte without creating a reserved value
		raw[2] ^= 0x40
	}
	return raw
}

// poll pops the next stroke sample when the request asks for stroke data
func (d *Device) poll(req *csafe.Request) (Sample, bool) {
	asked := false
	for _, c := range req.Commands {
		if c.Name == csafe.CmdPMGetForcePlotData || c.Name == csafe.CmdPMGetStrokeState {
			asked = true
			break
		}
	}
	if !asked {
		return Sample{}, false
	}

	if len(d.script) > 0 {
		s := d.script[0]
		d.script = d.script[1:]
		d.stroke = s.Stroke
		return s, true
	}
	if d.rowing != nil {
		s := d.rowing.next()
		d.stroke = s.Stroke
		return s, true
	}
	return Sample{Machine: d.machine, Stroke: d.stroke}, true
}

// apply performs the state change a command requests
func (d *Device) apply(c csafe.RequestCommand) {
	switch c.Name {
	case csafe.CmdReset:
		d.machine = csafe.MachineReady
		d.settings = map[csafe.Command][]uint64{}
	case csafe.CmdGoIdle:
		d.machine = csafe.MachineIdle
	case csafe.CmdGoHaveID:
		d.machine = csafe.MachineHaveID
	case csafe.CmdGoInUse:
		d.machine = csafe.MachineInUse
	case csafe.CmdGoFinished:
		d.machine = csafe.MachineFinish
	case csafe.CmdGoReady:
		d.machine = csafe.MachineReady
	}
	if len(c.Args) > 0 {
		d.settings[c.Name] = append([]uint64{}, c.Args...)
	}
}

// valuesFor returns the response values for one command
func (d *Device) valuesFor(c csafe.RequestCommand, sample Sample) []interface{} {
	spec, _ := csafe.LookupResponse(c.Spec.ResponseKey())

	switch c.Name {
	case csafe.CmdGetID:
		return []interface{}{DefaultUserID}
	case csafe.CmdGetCaps:
		return []interface{}{uint64(csafe.MaxFrameSize), uint64(csafe.MaxFrameSize), uint64(0)}
	case csafe.CmdPMGetStrokeState:
		return []interface{}{uint64(d.stroke)}
	case csafe.CmdPMGetForcePlotData:
		return forcePlotValues(sample.Force, spec)
	}

	if d.rowing != nil {
		if v, ok := d.rowing.values(c.Name); ok {
			return v
		}
	}
	if v, ok := d.values[c.Spec.ResponseKey()]; ok {
		return v
	}
	return zeroValues(spec)
}

// forcePlotValues lays out up to 16 samples behind their byte count
func forcePlotValues(force []uint16, spec csafe.ResponseSpec) []interface{} {
	values := zeroValues(spec)
	n := len(force)
	if n > len(values)-1 {
		n = len(values) - 1
	}
	values[0] = uint64(n * 2)
	for i := 0; i < n; i++ {
		values[1+i] = uint64(force[i])
	}
	return values
}

func zeroValues(spec csafe.ResponseSpec) []interface{} {
	values := make([]interface{}, len(spec.Fields))
	for i, width := range spec.Fields {
		if width < 0 {
			values[i] = ""
		} else {
			values[i] = uint64(0)
		}
	}
	return values
}

// Set fixes the values returned for a command
func (d *Device) Set(name csafe.Command, values ...interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setLocked(name, values...)
}

func (d *Device) setLocked(name csafe.Command, values ...interface{}) error {
	spec, ok := csafe.LookupCommand(name)
	if !ok {
		return fmt.Errorf("%w: %s", csafe.ErrUnknownCommand, name)
	}
	converted := make([]interface{}, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case string:
			converted[i] = t
		case int:
			converted[i] = uint64(t)
		default:
			converted[i] = v
		}
	}
	d.values[spec.ResponseKey()] = converted
	return nil
}

// SetMachineState sets the state reported in the status byte
func (d *Device) SetMachineState(s csafe.MachineState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.machine = s
}

// SetStrokeState sets the stroke state reported when no script is queued
func (d *Device) SetStrokeState(s csafe.StrokeState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stroke = s
}

// QueueSamples scripts the answers to the next force plot polls
func (d *Device) QueueSamples(samples ...Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, samples...)
}

// SetRowing starts the continuous rowing model. Zero watts stops it.
func (d *Device) SetRowing(watts, spm int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if watts <= 0 {
		d.rowing = nil
		return
	}
	d.rowing = newRowingModel(watts, spm, time.Now)
	d.machine = csafe.MachineInUse
}

// FailNextWrite makes the next Write return err
func (d *Device) FailNextWrite(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrite = err
}

// FailNextRead makes the next Read return err
func (d *Device) FailNextRead(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failRead = err
}

// CorruptNext damages the checksum of the next response
func (d *Device) CorruptNext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.corruptNext = true
}

// RejectNext flags the next request as rejected in the response status
func (d *Device) RejectNext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejectNext = true
}

// Requests returns every request parsed so far
func (d *Device) Requests() []*csafe.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*csafe.Request(nil), d.requests...)
}

// Setting returns the arguments of the last received setter command
func (d *Device) Setting(name csafe.Command) ([]uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.settings[name]
	return v, ok
}

// MachineState returns the current machine state
func (d *Device) MachineState() csafe.MachineState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.machine
}

// rowingModel produces a repeating stroke cycle at constant power
type rowingModel struct {
	watts int
	spm   int
	start time.Time
	now   func() time.Time
	phase int
}

// strokeCycle is the stroke state sequence of one simulated stroke
var strokeCycle = []csafe.StrokeState{
	csafe.StrokeDriving,
	csafe.StrokeDriving,
	csafe.StrokeDriving,
	csafe.StrokeDwelling,
	csafe.StrokeRecovery,
	csafe.StrokeRecovery,
	csafe.StrokeRecovery,
	csafe.StrokeRecovery,
}

func newRowingModel(watts, spm int, now func() time.Time) *rowingModel {
	return &rowingModel{watts: watts, spm: spm, start: now(), now: now}
}

// next returns the sample for the next poll
func (r *rowingModel) next() Sample {
	state := strokeCycle[r.phase%len(strokeCycle)]
	s := Sample{Machine: csafe.MachineInUse, Stroke: state}

	if state == csafe.StrokeDriving || state == csafe.StrokeDwelling {
		// Half-sine drive profile split over the drive polls
		const perPoll = 8
		const drivePolls = 4
		peak := float64(r.watts) * 1.1
		offset := r.phase % len(strokeCycle) * perPoll
		for i := 0; i < perPoll; i++ {
			x := float64(offset+i) / float64(perPoll*drivePolls)
			s.Force = append(s.Force, uint16(peak*math.Sin(math.Pi*x)))
		}
	}
	r.phase++
	return s
}

// values derives the workout values from elapsed time
func (r *rowingModel) values(name csafe.Command) ([]interface{}, bool) {
	elapsed := r.now().Sub(r.start).Seconds()
	// Speed in m/s from the pace model
	pace := pm.Pace(uint64(r.watts))
	speed := 500 / pace

	switch name {
	case csafe.CmdPMGetWorkTime:
		centi := uint64(elapsed * 100)
		return []interface{}{centi, uint64(0)}, true
	case csafe.CmdPMGetWorkDistance:
		deci := uint64(elapsed * speed * 10)
		return []interface{}{deci, uint64(0)}, true
	case csafe.CmdGetPower:
		return []interface{}{uint64(r.watts), uint64(csafe.UnitsWatts)}, true
	case csafe.CmdGetCadence:
		return []interface{}{uint64(r.spm), uint64(0)}, true
	case csafe.CmdGetCalories:
		return []interface{}{uint64(pm.CaloriesPerHour(uint64(r.watts)) * elapsed / 3600)}, true
	case csafe.CmdGetHRCur:
		return []interface{}{uint64(90 + r.watts/5)}, true
	}
	return nil, false
}
