// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pm

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

// Session defaults
const (
	DefaultFrameGap     = 50 * time.Millisecond
	DefaultWriteTimeout = 2 * time.Second
	DefaultReadTimeout  = 2 * time.Second
)

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithFrameGap sets the minimum time between two transmitted frames.
// Zero disables spacing.
func WithFrameGap(gap time.Duration) Option {
	return func(s *Session) {
		s.frameGap = gap
	}
}

// WithTimeouts sets the transport write and read timeouts
func WithTimeouts(write, read time.Duration) Option {
	return func(s *Session) {
		s.writeTimeout = write
		s.readTimeout = read
	}
}

// Session is a strictly sequential request/response channel to one monitor.
// It is safe for concurrent use; callers are serialized so at most one
// exchange is in flight.
type Session struct {
	mu        sync.Mutex
	transport Transport
	encoder   *csafe.Encoder
	decoder   *csafe.Decoder
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *Metrics
	stats     *Statistics
	closed    bool

	frameGap     time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration
}

// NewSession creates a session over an open transport
func NewSession(t Transport, opts ...Option) *Session {
	s := &Session{
		transport:    t,
		encoder:      csafe.NewEncoder(),
		logger:       zap.NewNop(),
		stats:        NewStatistics(),
		frameGap:     DefaultFrameGap,
		writeTimeout: DefaultWriteTimeout,
		readTimeout:  DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.decoder = csafe.NewDecoder(csafe.WithLogger(s.logger))
	limit := rate.Inf
	if s.frameGap > 0 {
		limit = rate.Every(s.frameGap)
	}
	s.limiter = rate.NewLimiter(limit, 1)

	return s
}

// Send encodes a command batch, exchanges it with the monitor and returns the
// decoded response. Tokens are command names each followed by its literal
// arguments.
func (s *Session) Send(ctx context.Context, tokens ...interface{}) (csafe.Response, error) {
	frame, err := s.Exchange(ctx, tokens...)
	if frame == nil {
		return nil, err
	}
	return frame.Response, err
}

// Exchange is Send returning the full decoded frame. A frame is returned
// alongside the error when the monitor answered but flagged the previous
// frame or sent an undecodable record.
func (s *Session) Exchange(ctx context.Context, tokens ...interface{}) (*csafe.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	report, err := s.encoder.Encode(tokens...)
	if err != nil {
		s.record(err, nil, 0)
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	n, err := s.transport.Write(report.Data, s.writeTimeout)
	if err == nil && n != len(report.Data) {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(report.Data))
	}
	if err != nil {
		return nil, s.transportFailure("write", err, report)
	}

	raw, err := s.transport.Read(csafe.MaxReportSize, s.readTimeout)
	if err == nil && len(raw) == 0 {
		err = ErrEmptyRead
	}
	if err != nil {
		return nil, s.transportFailure("read", err, report)
	}
	elapsed := time.Since(start)

	frame, err := s.decoder.DecodeFrame(raw)
	s.record(err, frame, elapsed)
	if s.metrics != nil {
		s.metrics.ReportSize.WithLabelValues(fmt.Sprintf("0x%02X", report.ID)).Inc()
	}

	if ce := s.logger.Check(zap.DebugLevel, "exchange"); ce != nil {
		ce.Write(
			zap.String("request", csafe.FormatHex(report.Data[:1+report.FrameLength])),
			zap.Uint8("report_id", report.ID),
			zap.Int("max_response", report.MaxResponse),
			zap.Int("response_bytes", len(raw)),
			zap.Duration("latency", elapsed),
			zap.Error(err),
		)
	}
	if err != nil {
		s.logger.Warn("exchange failed", zap.String("result", classify(err)), zap.Error(err))
	}

	return frame, err
}

func (s *Session) transportFailure(op string, err error, report *csafe.Report) error {
	terr := &TransportError{Op: op, Err: err}
	s.record(terr, nil, 0)
	s.logger.Warn("transport failure",
		zap.String("op", op),
		zap.Uint8("report_id", report.ID),
		zap.Error(err))
	return terr
}

func (s *Session) record(err error, frame *csafe.Frame, elapsed time.Duration) {
	result := classify(err)
	skipped := 0
	if frame != nil {
		skipped = len(frame.Skipped)
	}
	s.stats.Update(result, skipped)

	if s.metrics == nil {
		return
	}
	s.metrics.Exchanges.WithLabelValues(result).Inc()
	if elapsed > 0 {
		s.metrics.RoundTrip.Observe(elapsed.Seconds())
	}
	if frame != nil {
		for _, name := range frame.Skipped {
			s.metrics.SkippedRecords.WithLabelValues(name).Inc()
		}
	}
}

// Stats returns a copy of the session statistics
func (s *Session) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := *s.stats
	stats.CalculateRates()
	return stats
}

// Close closes the transport when it supports closing. Later calls fail
// with ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// uintField extracts an integer response field or fails with ErrMissingField
func uintField(resp csafe.Response, name csafe.Command, index int) (uint64, error) {
	v, ok := resp.Uint(string(name), index)
	if !ok {
		return 0, fmt.Errorf("%w: %s[%d]", ErrMissingField, name, index)
	}
	return v, nil
}

// textField extracts an ASCII response field or fails with ErrMissingField
func textField(resp csafe.Response, name csafe.Command, index int) (string, error) {
	v, ok := resp.Text(string(name), index)
	if !ok {
		return "", fmt.Errorf("%w: %s[%d]", ErrMissingField, name, index)
	}
	return v, nil
}
