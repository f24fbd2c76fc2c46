package arraystore

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/arraystore/query"
)

// MetricsCollector defines an interface for collecting operational metrics.
// PrometheusCollector exports them to Prometheus.
type MetricsCollector interface {
	// RecordSubmit is called after each Submit.
	// incomplete reports a read that stopped because its buffers were full.
	RecordSubmit(typ query.Type, duration time.Duration, incomplete bool, err error)

	// RecordFinalize is called after each finalize of a write query.
	RecordFinalize(duration time.Duration, err error)

	// RecordServe is called after each query served for a remote client.
	RecordServe(duration time.Duration, requestBytes, responseBytes int, err error)

	// RecordFragments is called whenever the fragment list of an array is
	// loaded.
	RecordFragments(n int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSubmit(query.Type, time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordFinalize(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordServe(time.Duration, int, int, error)          {}
func (NoopMetricsCollector) RecordFragments(int)                                 {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	ReadCount        atomic.Int64
	ReadErrors       atomic.Int64
	ReadIncomplete   atomic.Int64
	ReadTotalNanos   atomic.Int64
	WriteCount       atomic.Int64
	WriteErrors      atomic.Int64
	WriteTotalNanos  atomic.Int64
	FinalizeCount    atomic.Int64
	FinalizeErrors   atomic.Int64
	ServeCount       atomic.Int64
	ServeErrors      atomic.Int64
	ServeBytesIn     atomic.Int64
	ServeBytesOut    atomic.Int64
	FragmentsCurrent atomic.Int64
}

// RecordSubmit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSubmit(typ query.Type, duration time.Duration, incomplete bool, err error) {
	switch typ {
	case query.Read:
		b.ReadCount.Add(1)
		b.ReadTotalNanos.Add(duration.Nanoseconds())
		if incomplete {
			b.ReadIncomplete.Add(1)
		}
		if err != nil {
			b.ReadErrors.Add(1)
		}
	case query.Write:
		b.WriteCount.Add(1)
		b.WriteTotalNanos.Add(duration.Nanoseconds())
		if err != nil {
			b.WriteErrors.Add(1)
		}
	}
}

// RecordFinalize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFinalize(_ time.Duration, err error) {
	b.FinalizeCount.Add(1)
	if err != nil {
		b.FinalizeErrors.Add(1)
	}
}

// RecordServe implements MetricsCollector.
func (b *BasicMetricsCollector) RecordServe(_ time.Duration, requestBytes, responseBytes int, err error) {
	b.ServeCount.Add(1)
	b.ServeBytesIn.Add(int64(requestBytes))
	b.ServeBytesOut.Add(int64(responseBytes))
	if err != nil {
		b.ServeErrors.Add(1)
	}
}

// RecordFragments implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFragments(n int) {
	b.FragmentsCurrent.Store(int64(n))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ReadCount:      b.ReadCount.Load(),
		ReadErrors:     b.ReadErrors.Load(),
		ReadIncomplete: b.ReadIncomplete.Load(),
		ReadAvgNanos:   avgNanos(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		WriteCount:     b.WriteCount.Load(),
		WriteErrors:    b.WriteErrors.Load(),
		WriteAvgNanos:  avgNanos(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		FinalizeCount:  b.FinalizeCount.Load(),
		FinalizeErrors: b.FinalizeErrors.Load(),
		ServeCount:     b.ServeCount.Load(),
		ServeErrors:    b.ServeErrors.Load(),
		ServeBytesIn:   b.ServeBytesIn.Load(),
		ServeBytesOut:  b.ServeBytesOut.Load(),
		Fragments:      b.FragmentsCurrent.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ReadCount      int64
	ReadErrors     int64
	ReadIncomplete int64
	ReadAvgNanos   int64
	WriteCount     int64
	WriteErrors    int64
	WriteAvgNanos  int64
	FinalizeCount  int64
	FinalizeErrors int64
	ServeCount     int64
	ServeErrors    int64
	ServeBytesIn   int64
	ServeBytesOut  int64
	Fragments      int64
}
