// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Thermoquad/ergostat/pkg/pm"
)

var errNoRead = errors.New("no response read")

// Option configures a Recorder
type Option func(*Recorder)

// WithLogger sets the recorder logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSource labels the capture with the link it was taken from
func WithSource(source string) Option {
	return func(r *Recorder) {
		r.header.Source = source
	}
}

// WithClock replaces time.Now for timestamps and latency
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// Recorder is a pm.Transport that forwards to another transport and writes
// every exchange to a capture stream.
type Recorder struct {
	mu      sync.Mutex
	next    pm.Transport
	out     io.Writer
	enc     *cbor.Encoder
	logger  *zap.Logger
	now     func() time.Time
	header  Header
	seq     uint64
	pending *Exchange
}

var _ pm.Transport = (*Recorder)(nil)

// NewRecorder writes the capture header to out and returns a recorder
// wrapping next
func NewRecorder(next pm.Transport, out io.Writer, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		next:   next,
		out:    out,
		enc:    encMode.NewEncoder(out),
		logger: zap.NewNop(),
		now:    time.Now,
		header: Header{Version: FormatVersion, SessionID: uuid.NewString()},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.header.Started = r.now()

	if err := r.enc.Encode(r.header); err != nil {
		return nil, fmt.Errorf("capture: failed to write header: %w", err)
	}
	r.logger.Info("recording exchanges",
		zap.String("session_id", r.header.SessionID),
		zap.String("source", r.header.Source))
	return r, nil
}

// Header returns the capture header
func (r *Recorder) Header() Header {
	return r.header
}

// Write forwards a request report. A failed write is recorded immediately.
func (r *Recorder) Write(p []byte, timeout time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A request that never got a read still belongs in the capture
	if r.pending != nil {
		r.flush(nil, errNoRead, "read")
	}

	r.seq++
	r.pending = &Exchange{
		Seq:     r.seq,
		Time:    r.now(),
		Request: append([]byte(nil), p...),
	}

	n, err := r.next.Write(p, timeout)
	if err != nil {
		r.flush(nil, err, "write")
	}
	return n, err
}

// Read forwards a response read and records the completed exchange
func (r *Recorder) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	data, err := r.next.Read(maxLen, timeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		r.flush(data, err, "read")
	}
	return data, err
}

// flush writes the pending exchange. Capture write failures are logged and
// never fail the exchange itself.
func (r *Recorder) flush(response []byte, err error, op string) {
	e := r.pending
	r.pending = nil
	e.Latency = r.now().Sub(e.Time)
	e.Response = append([]byte(nil), response...)
	if err != nil {
		e.Error = err.Error()
		e.FailedOp = op
	}

	if werr := r.enc.Encode(e); werr != nil {
		r.logger.Warn("failed to write capture record",
			zap.Uint64("seq", e.Seq),
			zap.Error(werr))
	}
}

// Close flushes an unanswered request, then closes the capture output and
// the wrapped transport when they support closing
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending != nil {
		r.flush(nil, errNoRead, "read")
	}

	var firstErr error
	if c, ok := r.out.(io.Closer); ok {
		firstErr = c.Close()
	}
	if c, ok := r.next.(io.Closer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
