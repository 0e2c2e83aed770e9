// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pm

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/ergostat/pkg/csafe"
)

// Exchange results used as the "result" label
const (
	ResultOK           = "ok"
	ResultConstruction = "construction_error"
	ResultTransport    = "transport_error"
	ResultIntegrity    = "integrity_error"
	ResultRejected     = "rejected"
	ResultProtocol     = "protocol_error"
)

// Metrics are the Prometheus collectors updated by a Session
type Metrics struct {
	Exchanges      *prometheus.CounterVec // labels: result
	RoundTrip      prometheus.Histogram
	SkippedRecords *prometheus.CounterVec // labels: response
	ReportSize     *prometheus.CounterVec // labels: report_id
	Strokes        prometheus.Counter
	ForceSamples   prometheus.Counter
}

// NewMetrics creates the session collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ergostat_exchanges_total",
			Help: "CSAFE request/response exchanges by result.",
		}, []string{"result"}),
		RoundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ergostat_round_trip_seconds",
			Help:    "Write plus read time of one exchange, frame gap excluded.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
		SkippedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ergostat_skipped_records_total",
			Help: "Response records dropped for a byte count mismatch.",
		}, []string{"response"}),
		ReportSize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ergostat_reports_sent_total",
			Help: "Reports sent by report id.",
		}, []string{"report_id"}),
		Strokes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ergostat_force_curves_total",
			Help: "Completed force curve captures.",
		}),
		ForceSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ergostat_force_samples_total",
			Help: "Force samples accumulated across all captures.",
		}),
	}
	reg.MustRegister(m.Exchanges, m.RoundTrip, m.SkippedRecords, m.ReportSize, m.Strokes, m.ForceSamples)
	return m
}

// classify maps an exchange error to its result label
func classify(err error) string {
	var transportErr *TransportError
	switch {
	case err == nil:
		return ResultOK
	case errors.As(err, &transportErr):
		return ResultTransport
	case csafe.IsConstructionError(err):
		return ResultConstruction
	case csafe.IsIntegrityError(err):
		return ResultIntegrity
	case errors.Is(err, csafe.ErrPreviousFrameRejected):
		return ResultRejected
	}
	return ResultProtocol
}
