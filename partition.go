package undolog

import (
	"context"
	"time"

	"github.com/hupe1980/undolog/arena"
	"github.com/hupe1980/undolog/pool"
	"github.com/hupe1980/undolog/resource"
	"github.com/hupe1980/undolog/undo"
)

// Partition owns the undo machinery of one execution site: a memory budget,
// the size-class pools that back its arenas, and the undo log.
//
// A Partition is confined to one goroutine at a time.
type Partition struct {
	id         int32
	opts       options
	logger     *Logger
	controller *resource.Controller
	registry   *pool.Registry
	log        *undo.Log
	closed     bool
}

// Stats is a snapshot of a partition's memory and undo state.
type Stats struct {
	Partition     int32
	OpenQuanta    int
	PooledArenas  int
	UndoBytes     int64 // arena bytes held by open quanta
	BytesReserved int64 // bytes held by the partition's pools and oversize chunks
	PeakReserved  int64
	MemoryLimit   int64
	Denied        int64 // slab reservations refused by the budget
	Pools         []pool.Stats
}

// NewPartition creates the partition with the given id.
func NewPartition(id int32, optFns ...Option) (*Partition, error) {
	o := applyOptions(optFns)
	logger := o.logger.WithPartition(id)

	rc := resource.NewController(resource.Config{MemoryLimitBytes: o.memoryLimit})
	reg := pool.NewRegistry(
		pool.WithPartitionID(id),
		pool.WithController(rc),
		pool.WithOffHeap(o.offHeap),
		pool.WithChecking(o.checking),
		pool.WithLogger(logger.Logger),
	)

	p := &Partition{
		id:         id,
		opts:       o,
		logger:     logger,
		controller: rc,
		registry:   reg,
	}

	log, err := undo.NewLog(p.chunkSource(),
		undo.WithChunkSize(o.chunkSize),
		undo.WithRetainedChunks(o.retainedChunks),
		undo.WithMaxPooledArenas(o.maxPooledArenas),
		undo.WithLogger(logger.Logger),
		undo.WithObserver(&metricsObserver{mc: o.metricsCollector, logger: logger}),
		undo.WithCoordinator(o.coordinator),
	)
	if err != nil {
		_ = reg.Close()
		return nil, translateError(err)
	}
	p.log = log

	logger.Debug("partition opened",
		"chunk_size", o.chunkSize,
		"memory_limit", o.memoryLimit,
		"off_heap", o.offHeap,
	)
	return p, nil
}

// ID returns the partition id.
func (p *Partition) ID() int32 { return p.id }

// Registry returns the partition's size-class pools.
func (p *Partition) Registry() *pool.Registry { return p.registry }

// Log returns the partition's undo log.
func (p *Partition) Log() *undo.Log { return p.log }

// Dummy returns the quantum for work that needs no undo.
func (p *Partition) Dummy() *undo.DummyQuantum { return p.log.Dummy() }

// Begin opens the undo quantum for token.
func (p *Partition) Begin(token int64) (*undo.UndoQuantum, error) {
	if p.closed {
		return nil, ErrClosed
	}
	q, err := p.log.Generate(token)
	if err != nil {
		return nil, translateError(err)
	}
	return q, nil
}

// Undo rolls back every quantum at or above token, newest first.
func (p *Partition) Undo(token int64) { p.log.Undo(token) }

// Release commits every quantum at or below token, oldest first.
func (p *Partition) Release(token int64) { p.log.Release(token) }

// NewArena returns a general purpose arena backed by the partition's pools.
// The caller owns it and must Free it before closing the partition.
func (p *Partition) NewArena(opts ...arena.Option) (*arena.Arena, error) {
	if p.closed {
		return nil, ErrClosed
	}
	opts = append([]arena.Option{arena.WithLogger(p.logger.Logger)}, opts...)
	a, err := arena.New(p.chunkSource(), opts...)
	if err != nil {
		return nil, translateError(err)
	}
	return a, nil
}

// Stats returns a snapshot of the partition.
func (p *Partition) Stats() Stats {
	return Stats{
		Partition:     p.id,
		OpenQuanta:    p.log.Len(),
		PooledArenas:  p.log.Pooled(),
		UndoBytes:     p.log.Size(),
		BytesReserved: p.registry.BytesReserved(),
		PeakReserved:  p.controller.PeakMemoryUsage(),
		MemoryLimit:   p.controller.MemoryLimit(),
		Denied:        p.controller.Denied(),
		Pools:         p.registry.Stats(),
	}
}

// Close shuts the undo log down, then releases every pool. It fails with
// ErrOutstandingQuanta, leaving the partition open, while quanta are open.
// Leaked pool blocks are reported as ErrLeakedBlocks.
func (p *Partition) Close() error {
	if p.closed {
		return nil
	}
	if err := p.log.Close(); err != nil {
		return err
	}
	p.closed = true

	reserved := p.registry.BytesReserved()
	err := p.registry.Close()
	p.logger.LogClose(reserved, err)
	return err
}

var _ arena.ChunkSource = (*pool.Registry)(nil)

type contextKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Partition) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the partition carried by ctx, if any.
func FromContext(ctx context.Context) (*Partition, bool) {
	p, ok := ctx.Value(contextKey{}).(*Partition)
	return p, ok && p != nil
}

func (p *Partition) chunkSource() arena.ChunkSource {
	return &chunkSource{p: p}
}

// chunkSource feeds arenas from the registry and reports exhaustion.
type chunkSource struct {
	p *Partition
}

func (s *chunkSource) AcquireChunk(size int) ([]byte, error) {
	b, err := s.p.registry.AcquireChunk(size)
	if err != nil {
		if IsOutOfMemory(err) {
			s.p.opts.metricsCollector.RecordOutOfMemory()
			s.p.logger.LogOutOfMemory(size, err)
		}
		return nil, err
	}
	return b, nil
}

func (s *chunkSource) ReleaseChunk(b []byte) {
	s.p.registry.ReleaseChunk(b)
}

// metricsObserver forwards quantum lifecycle events to metrics and logs.
type metricsObserver struct {
	mc     MetricsCollector
	logger *Logger
}

func (m *metricsObserver) QuantumFinalized(id int64, state undo.State, actions int, elapsed time.Duration) {
	switch state {
	case undo.Committed:
		// Dummy registrations are not transactions.
		if id == undo.DummyID {
			return
		}
		m.mc.RecordCommit(actions, elapsed)
		m.logger.LogCommit(id, actions, elapsed)
	case undo.RolledBack:
		m.mc.RecordRollback(actions, elapsed)
		m.logger.LogRollback(id, actions, elapsed)
	}
}

func (m *metricsObserver) ArenaPurged(_ int64, bytes int64) {
	m.mc.RecordPurge(bytes)
}
