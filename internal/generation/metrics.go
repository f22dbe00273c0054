package generation

import (
	"sync/atomic"
	"time"
)

// Metrics tracks generation call counters.
type Metrics struct {
	calls   int64
	errors  int64
	latency int64 // total latency in nanoseconds
}

var globalMetrics = &Metrics{}

// GetMetrics returns the current metrics snapshot.
func GetMetrics() Metrics {
	return Metrics{
		calls:   atomic.LoadInt64(&globalMetrics.calls),
		errors:  atomic.LoadInt64(&globalMetrics.errors),
		latency: atomic.LoadInt64(&globalMetrics.latency),
	}
}

// ResetMetrics resets all counters (useful for testing).
func ResetMetrics() {
	atomic.StoreInt64(&globalMetrics.calls, 0)
	atomic.StoreInt64(&globalMetrics.errors, 0)
	atomic.StoreInt64(&globalMetrics.latency, 0)
}

func recordGenerationCall(duration time.Duration, err error) {
	atomic.AddInt64(&globalMetrics.calls, 1)
	atomic.AddInt64(&globalMetrics.latency, duration.Nanoseconds())
	if err != nil {
		atomic.AddInt64(&globalMetrics.errors, 1)
	}
}

// Calls returns the number of generation calls made.
func (m Metrics) Calls() int64 { return m.calls }

// Errors returns the number of failed generation calls.
func (m Metrics) Errors() int64 { return m.errors }

// AverageLatency returns the average call latency in milliseconds.
func (m Metrics) AverageLatency() float64 {
	if m.calls == 0 {
		return 0
	}
	return float64(m.latency) / float64(m.calls) / 1e6
}

// ErrorRate returns the error rate as a percentage.
func (m Metrics) ErrorRate() float64 {
	if m.calls == 0 {
		return 0
	}
	return float64(m.errors) / float64(m.calls) * 100
}
