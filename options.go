package undolog

import (
	"log/slog"

	"github.com/hupe1980/undolog/arena"
	"github.com/hupe1980/undolog/undo"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	memoryLimit      int64
	chunkSize        int
	retainedChunks   int
	maxPooledArenas  int
	offHeap          bool
	checking         bool
	coordinator      undo.Coordinator
}

// Option configures a Partition.
type Option func(*options)

// WithMetricsCollector sets the metrics collector.
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel is a shorthand for a text logger at level.
func WithLogLevel(level slog.Level) Option {
	return WithLogger(NewTextLogger(level))
}

// WithMemoryLimit bounds the slab memory of the partition's pools.
// Zero or less means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithChunkSize sets the arena chunk size of undo quanta.
// Defaults to arena.UndoChunkSize.
func WithChunkSize(size int) Option {
	return func(o *options) {
		o.chunkSize = size
	}
}

// WithRetainedChunks sets how many chunks an undo arena keeps when purged.
func WithRetainedChunks(n int) Option {
	return func(o *options) {
		o.retainedChunks = n
	}
}

// WithMaxPooledArenas bounds the purged undo arenas kept for reuse.
func WithMaxPooledArenas(n int) Option {
	return func(o *options) {
		o.maxPooledArenas = n
	}
}

// WithOffHeap places pool slabs in anonymous memory mappings.
func WithOffHeap(enabled bool) Option {
	return func(o *options) {
		o.offHeap = enabled
	}
}

// WithChecking tracks live pool blocks to diagnose misuse and leaks.
func WithChecking(enabled bool) Option {
	return func(o *options) {
		o.checking = enabled
	}
}

// WithCoordinator routes finalization of actions on replicated tables
// through c.
func WithCoordinator(c undo.Coordinator) Option {
	return func(o *options) {
		o.coordinator = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		chunkSize:        arena.UndoChunkSize,
		retainedChunks:   arena.DefaultRetainedChunks,
		maxPooledArenas:  undo.DefaultMaxPooledArenas,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}
