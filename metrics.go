package undolog

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus;
// package promcollector provides one.
type MetricsCollector interface {
	// RecordCommit is called after a quantum released its actions.
	RecordCommit(actions int, duration time.Duration)

	// RecordRollback is called after a quantum undid its actions.
	RecordRollback(actions int, duration time.Duration)

	// RecordPurge is called when an undo arena is purged.
	// bytes is the memory the arena held before the purge.
	RecordPurge(bytes int64)

	// RecordOutOfMemory is called when a chunk could not be obtained.
	RecordOutOfMemory()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCommit(int, time.Duration)   {}
func (NoopMetricsCollector) RecordRollback(int, time.Duration) {}
func (NoopMetricsCollector) RecordPurge(int64)                 {}
func (NoopMetricsCollector) RecordOutOfMemory()                {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CommitCount        atomic.Int64
	CommitActions      atomic.Int64
	CommitTotalNanos   atomic.Int64
	RollbackCount      atomic.Int64
	RollbackActions    atomic.Int64
	RollbackTotalNanos atomic.Int64
	PurgeCount         atomic.Int64
	PurgedBytes        atomic.Int64
	OutOfMemoryCount   atomic.Int64
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(actions int, duration time.Duration) {
	b.CommitCount.Add(1)
	b.CommitActions.Add(int64(actions))
	b.CommitTotalNanos.Add(duration.Nanoseconds())
}

// RecordRollback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollback(actions int, duration time.Duration) {
	b.RollbackCount.Add(1)
	b.RollbackActions.Add(int64(actions))
	b.RollbackTotalNanos.Add(duration.Nanoseconds())
}

// RecordPurge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPurge(bytes int64) {
	b.PurgeCount.Add(1)
	b.PurgedBytes.Add(bytes)
}

// RecordOutOfMemory implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOutOfMemory() {
	b.OutOfMemoryCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CommitCount:      b.CommitCount.Load(),
		CommitActions:    b.CommitActions.Load(),
		CommitAvgNanos:   avg(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
		RollbackCount:    b.RollbackCount.Load(),
		RollbackActions:  b.RollbackActions.Load(),
		RollbackAvgNanos: avg(b.RollbackTotalNanos.Load(), b.RollbackCount.Load()),
		PurgeCount:       b.PurgeCount.Load(),
		PurgedBytes:      b.PurgedBytes.Load(),
		OutOfMemoryCount: b.OutOfMemoryCount.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CommitCount      int64
	CommitActions    int64
	CommitAvgNanos   int64
	RollbackCount    int64
	RollbackActions  int64
	RollbackAvgNanos int64
	PurgeCount       int64
	PurgedBytes      int64
	OutOfMemoryCount int64
}
