package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hupe1980/undolog/resource"
)

// Registry maps exact byte sizes to pools for one partition.
//
// A Registry replaces a per-thread pool table: the partition that owns it is
// the only caller, so lookups and allocations take no locks.
type Registry struct {
	partition  int32
	pools      map[int]*Pool
	large      map[uintptr]*largeChunk
	controller *resource.Controller
	offHeap    bool
	checking   bool
	logger     *slog.Logger
	reserved   int64
	closed     bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithPartitionID tags the registry (and its log lines) with a partition id.
func WithPartitionID(id int32) Option {
	return func(r *Registry) {
		r.partition = id
	}
}

// WithController reserves slab memory against a shared budget.
func WithController(c *resource.Controller) Option {
	return func(r *Registry) {
		r.controller = c
	}
}

// WithOffHeap places slabs in anonymous mappings instead of the Go heap.
func WithOffHeap(enabled bool) Option {
	return func(r *Registry) {
		r.offHeap = enabled
	}
}

// WithChecking enables live-block tracking for leak and misuse diagnostics.
func WithChecking(enabled bool) Option {
	return func(r *Registry) {
		r.checking = enabled
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{pools: make(map[int]*Pool)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PartitionID returns the id of the owning partition.
func (r *Registry) PartitionID() int32 { return r.partition }

// GetExact returns the pool serving blocks of exactly size bytes, creating it
// on first use. Repeated calls with the same size return the same pool.
func (r *Registry) GetExact(size int) (*Pool, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if p, ok := r.pools[size]; ok {
		return p, nil
	}

	p := newPool(r, size)
	r.pools[size] = p
	if r.logger != nil {
		r.logger.Debug("pool created", "partition", r.partition, "size", size)
	}
	return p, nil
}

// Lookup returns the pool for size without creating it.
func (r *Registry) Lookup(size int) (*Pool, bool) {
	p, ok := r.pools[size]
	return p, ok
}

// Allocate returns a zeroed block of exactly size bytes.
func (r *Registry) Allocate(size int) ([]byte, error) {
	p, err := r.GetExact(size)
	if err != nil {
		return nil, err
	}
	return p.Allocate()
}

// Deallocate returns a block of size bytes to its pool.
// Freeing a size that was never allocated panics.
func (r *Registry) Deallocate(size int, b []byte) {
	p, ok := r.pools[size]
	if !ok {
		violate("deallocate", "no pool for size %d in partition %d", size, r.partition)
	}
	p.Deallocate(b)
}

// AcquireChunk serves arena chunks. Requests up to MaxPooledSize are taken
// from their SizeClass pool so that odd-sized chunks share pools; larger
// ones are reserved individually and given back by ReleaseChunk. The slice
// returned is exactly size bytes long.
func (r *Registry) AcquireChunk(size int) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if size > MaxPooledSize {
		return r.acquireLarge(size)
	}
	class, err := SizeClass(size)
	if err != nil {
		return nil, err
	}
	b, err := r.Allocate(class)
	if err != nil {
		return nil, err
	}
	return b[:size:size], nil
}

// ReleaseChunk returns a chunk obtained from AcquireChunk.
func (r *Registry) ReleaseChunk(b []byte) {
	if len(b) > MaxPooledSize {
		r.releaseLarge(b)
		return
	}
	class, err := SizeClass(len(b))
	if err != nil {
		violate("release chunk", "%v", err)
	}
	r.Deallocate(class, b)
}

// BytesReserved returns the bytes held by all pools and oversize chunks of
// the registry.
func (r *Registry) BytesReserved() int64 { return r.reserved }

// InUse returns the number of live blocks across all pools, counting each
// oversize chunk as one block.
func (r *Registry) InUse() int {
	n := len(r.large)
	for _, p := range r.pools {
		n += p.inUse
	}
	return n
}

// Sizes returns the sizes that currently have a pool, ascending.
func (r *Registry) Sizes() []int {
	sizes := make([]int, 0, len(r.pools))
	for size := range r.pools {
		sizes = append(sizes, size)
	}
	slices.Sort(sizes)
	return sizes
}

// Stats returns per-pool statistics ordered by size.
func (r *Registry) Stats() []Stats {
	sizes := r.Sizes()
	stats := make([]Stats, 0, len(sizes))
	for _, size := range sizes {
		stats = append(stats, r.pools[size].Stats())
	}
	return stats
}

// Close releases every pool. Leaks are reported as ErrLeakedBlocks but do
// not prevent the memory from being reclaimed. Close is idempotent.
func (r *Registry) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, size := range r.Sizes() {
		if err := r.pools[size].Release(); err != nil {
			errs = append(errs, err)
		}
	}
	clear(r.pools)

	if n := len(r.large); n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d oversize chunks", ErrLeakedBlocks, n))
		if r.logger != nil {
			r.logger.Error("missing chunk release", "partition", r.partition, "chunks", n)
		}
		for _, c := range r.large {
			r.freeLarge(c)
		}
		clear(r.large)
	}
	return errors.Join(errs...)
}

func (r *Registry) logOOM(size, bytes int, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("pool out of memory",
		"partition", r.partition,
		"size", size,
		"slab_bytes", bytes,
		"error", err,
	)
}
