// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pm

import (
	"fmt"
	"time"
)

// Statistics tracks exchange counts and error rates for one session
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalExchanges     uint64
	ValidExchanges     uint64
	ConstructionErrors uint64
	TransportErrors    uint64
	IntegrityErrors    uint64
	RejectedFrames     uint64
	ProtocolErrors     uint64
	SkippedRecords     uint64

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one exchange result and the number of records the decoder
// skipped in it
func (s *Statistics) Update(result string, skipped int) {
	s.TotalExchanges++
	s.SkippedRecords += uint64(skipped)

	switch result {
	case ResultOK:
		s.ValidExchanges++
	case ResultConstruction:
		s.ConstructionErrors++
	case ResultTransport:
		s.TransportErrors++
	case ResultIntegrity:
		s.IntegrityErrors++
	case ResultRejected:
		s.RejectedFrames++
	default:
		s.ProtocolErrors++
	}

	s.LastUpdateTime = time.Now()
}

// Errors returns the number of failed exchanges
func (s *Statistics) Errors() uint64 {
	return s.TotalExchanges - s.ValidExchanges
}

// CalculateRates calculates exchange and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.TotalExchanges) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalExchanges == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalExchanges)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Exchanges: %8d\n", s.TotalExchanges)
	result += fmt.Sprintf("Valid Exchanges: %8d (%.1f%%)\n", s.ValidExchanges, percent(s.ValidExchanges))

	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d (%.1f%%)\n", s.TransportErrors, percent(s.TransportErrors))
	}
	if s.IntegrityErrors > 0 {
		result += fmt.Sprintf("Integrity Errors:%8d (%.1f%%)\n", s.IntegrityErrors, percent(s.IntegrityErrors))
	}
	if s.RejectedFrames > 0 {
		result += fmt.Sprintf("Rejected Frames: %8d (%.1f%%)\n", s.RejectedFrames, percent(s.RejectedFrames))
	}
	if s.ProtocolErrors > 0 {
		result += fmt.Sprintf("Protocol Errors: %8d (%.1f%%)\n", s.ProtocolErrors, percent(s.ProtocolErrors))
	}
	if s.ConstructionErrors > 0 {
		result += fmt.Sprintf("Not Sent:        %8d (%.1f%%)\n", s.ConstructionErrors, percent(s.ConstructionErrors))
	}
	if s.SkippedRecords > 0 {
		result += fmt.Sprintf("Skipped Records: %8d\n", s.SkippedRecords)
	}

	result += fmt.Sprintf("Exchange Rate:   %8.1f /sec\n", s.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
