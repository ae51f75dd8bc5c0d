package arena

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrOutOfMemory is returned when the chunk source cannot supply a chunk.
	ErrOutOfMemory = errors.New("arena: out of memory")
	// ErrMaxChunksExceeded is returned when the arena exceeds the maximum number of chunks.
	ErrMaxChunksExceeded = errors.New("arena: max chunks exceeded")
	// ErrTooLarge is returned for requests above MaxChunkSize.
	ErrTooLarge = errors.New("arena: allocation too large")
	// ErrClosed is returned when allocating from a freed arena.
	ErrClosed = errors.New("arena: closed")
	// ErrInvalidChunkSize is returned by New for chunk sizes outside (0, MaxChunkSize].
	ErrInvalidChunkSize = errors.New("arena: invalid chunk size")
)

const (
	// DefaultChunkSize is the chunk size of general purpose arenas (64 KiB).
	DefaultChunkSize = 64 << 10
	// UndoChunkMultiplier scales DefaultChunkSize for undo-scoped arenas.
	UndoChunkMultiplier = 4
	// UndoChunkSize is the chunk size of arenas owned by undo quanta.
	UndoChunkSize = DefaultChunkSize * UndoChunkMultiplier
	// MaxChunkSize bounds both the configured chunk size and a single request.
	MaxChunkSize = 1 << 30
	// DefaultAlignment is the alignment of every allocation (8 bytes).
	DefaultAlignment = 8
	// DefaultRetainedChunks is the number of chunks kept across a purge.
	DefaultRetainedChunks = 1
	// MaxChunks limits standard and oversize chunks of one arena.
	MaxChunks = 1 << 16

	offsetBits = 32
	offsetMask = 1<<offsetBits - 1
	largeIndex = uint64(1) << 31 // chunk index bit marking oversize chunks
)

// Stats tracks arena memory usage.
//
//   - ChunksAllocated: chunks ever acquired from the source (historical)
//   - ActiveChunks: chunks currently held, oversize included
//   - BytesReserved: bytes of all held chunks
//   - BytesUsed: bytes requested since the last purge
//   - BytesWasted: alignment padding since the last purge
//   - HighWater: largest BytesUsed+BytesWasted seen before any purge
//   - TotalAllocs: allocations ever served (historical)
//   - Purges: purges performed (historical)
type Stats struct {
	ChunksAllocated uint64
	ActiveChunks    uint64
	BytesReserved   uint64
	BytesUsed       uint64
	BytesWasted     uint64
	HighWater       uint64
	TotalAllocs     uint64
	Purges          uint64
}

// Ref is a generation-checked reference to an arena allocation.
type Ref struct {
	Gen    uint32
	Offset uint64
}

// IsZero reports whether r is the zero reference, as returned for empty requests.
func (r Ref) IsZero() bool { return r == Ref{} }

type chunk struct {
	data   []byte
	offset int
}

// Arena is a chunked bump allocator. It is not safe for concurrent use.
type Arena struct {
	src        ChunkSource
	chunkSize  int
	alignment  int
	retained   int
	logger     *slog.Logger
	chunks     []*chunk // standard chunks, appended only
	large      []*chunk // oversize chunks, released on every purge
	current    int
	generation uint32
	stats      Stats
	closed     bool
}

// Option is a configuration option for Arena.
type Option func(*Arena)

// WithChunkSize sets the size of standard chunks.
func WithChunkSize(size int) Option {
	return func(a *Arena) {
		a.chunkSize = size
	}
}

// WithRetainedChunks sets how many standard chunks survive a purge.
func WithRetainedChunks(n int) Option {
	return func(a *Arena) {
		a.retained = max(n, 0)
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arena) {
		a.logger = l
	}
}

// New creates an empty arena drawing chunks from src. No chunk is acquired
// until the first allocation.
func New(src ChunkSource, opts ...Option) (*Arena, error) {
	if src == nil {
		src = HeapSource{}
	}

	a := &Arena{
		src:        src,
		chunkSize:  DefaultChunkSize,
		alignment:  DefaultAlignment,
		retained:   DefaultRetainedChunks,
		generation: 1, // zero is never valid
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.chunkSize <= 0 || a.chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, a.chunkSize)
	}
	return a, nil
}

// ChunkSize returns the size of standard chunks.
func (a *Arena) ChunkSize() int { return a.chunkSize }

// Generation returns the current generation of the arena.
func (a *Arena) Generation() uint32 { return a.generation }

// Allocate returns n zero-initialised bytes and their reference.
// A request of n <= 0 returns the zero Ref and a nil slice.
//
// If the current chunk lacks room the cursor moves to the next retained
// chunk, and failing that a new chunk of max(chunkSize, n) bytes is appended.
// Errors wrap ErrOutOfMemory when the source cannot supply a chunk.
func (a *Arena) Allocate(n int) (Ref, []byte, error) {
	if a.closed {
		return Ref{}, nil, ErrClosed
	}
	if n <= 0 {
		return Ref{}, nil, nil
	}
	if n > MaxChunkSize {
		return Ref{}, nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}

	aligned := alignUp(n, a.alignment)
	if aligned > a.chunkSize {
		return a.allocLarge(n, aligned)
	}

	for {
		if a.current < len(a.chunks) {
			c := a.chunks[a.current]
			if c.offset+aligned <= len(c.data) {
				ref, b := a.carve(uint64(a.current), c, n, aligned)
				return ref, b, nil
			}
			if a.current+1 < len(a.chunks) {
				a.current++
				continue
			}
		}

		c, err := a.acquire(a.chunkSize)
		if err != nil {
			return Ref{}, nil, err
		}
		a.chunks = append(a.chunks, c)
		a.current = len(a.chunks) - 1
	}
}

// AllocateCopy copies src into the arena and returns the arena-owned copy.
func (a *Arena) AllocateCopy(src []byte) (Ref, []byte, error) {
	ref, b, err := a.Allocate(len(src))
	if err != nil {
		return Ref{}, nil, err
	}
	copy(b, src)
	return ref, b, nil
}

func (a *Arena) allocLarge(n, aligned int) (Ref, []byte, error) {
	c, err := a.acquire(aligned)
	if err != nil {
		return Ref{}, nil, err
	}
	idx := uint64(len(a.large))
	a.large = append(a.large, c)
	ref, b := a.carve(idx|largeIndex, c, n, aligned)
	return ref, b, nil
}

func (a *Arena) carve(idx uint64, c *chunk, n, aligned int) (Ref, []byte) {
	off := c.offset
	c.offset += aligned
	clear(c.data[off:c.offset])

	a.stats.BytesUsed += uint64(n)
	a.stats.BytesWasted += uint64(aligned - n)
	a.stats.TotalAllocs++
	if hw := a.stats.BytesUsed + a.stats.BytesWasted; hw > a.stats.HighWater {
		a.stats.HighWater = hw
	}
	ref := Ref{Gen: a.generation, Offset: idx<<offsetBits | uint64(off)}
	return ref, c.data[off : off+n : off+n]
}

func (a *Arena) acquire(size int) (*chunk, error) {
	if len(a.chunks)+len(a.large) >= MaxChunks {
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, ErrMaxChunksExceeded)
	}

	data, err := a.src.AcquireChunk(size)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("arena chunk acquisition failed", "size", size, "error", err)
		}
		return nil, fmt.Errorf("%w: chunk of %d bytes: %w", ErrOutOfMemory, size, err)
	}

	a.stats.ChunksAllocated++
	a.stats.ActiveChunks++
	a.stats.BytesReserved += uint64(len(data))

	if a.logger != nil {
		a.logger.Debug("arena chunk acquired", "size", size, "active", a.stats.ActiveChunks)
	}
	return &chunk{data: data}, nil
}

// Bytes returns the n bytes at ref, or nil if ref predates the last purge
// or does not name a live allocation.
func (a *Arena) Bytes(ref Ref, n int) []byte {
	if a.closed || ref.Gen != a.generation || ref.IsZero() || n <= 0 {
		return nil
	}

	idx := ref.Offset >> offsetBits
	off := int(ref.Offset & offsetMask)

	var c *chunk
	if idx&largeIndex != 0 {
		i := int(idx &^ largeIndex) //nolint:gosec // bounded by MaxChunks
		if i >= len(a.large) {
			return nil
		}
		c = a.large[i]
	} else {
		if idx >= uint64(len(a.chunks)) {
			return nil
		}
		c = a.chunks[idx]
	}

	if off+n > c.offset {
		return nil
	}
	return c.data[off : off+n : off+n]
}

// Purge reclaims every allocation at once. The first RetainedChunks standard
// chunks are kept and rewound; all other chunks go back to the source. Every
// Ref handed out before the purge becomes stale.
func (a *Arena) Purge() {
	if a.closed {
		return
	}
	a.generation++
	if a.generation == 0 {
		a.generation = 1
	}

	var released uint64
	for _, c := range a.large {
		released += uint64(len(c.data))
		a.src.ReleaseChunk(c.data)
	}
	clear(a.large)
	a.large = a.large[:0]

	keep := min(a.retained, len(a.chunks))
	for i := keep; i < len(a.chunks); i++ {
		released += uint64(len(a.chunks[i].data))
		a.src.ReleaseChunk(a.chunks[i].data)
		a.chunks[i] = nil
	}
	a.chunks = a.chunks[:keep]
	for _, c := range a.chunks {
		c.offset = 0
	}
	a.current = 0

	a.stats.ActiveChunks = uint64(len(a.chunks))
	a.stats.BytesReserved -= released
	a.stats.BytesUsed = 0
	a.stats.BytesWasted = 0
	a.stats.Purges++

	if a.logger != nil {
		a.logger.Debug("arena purged", "generation", a.generation, "retained", keep, "released_bytes", released)
	}
}

// Free returns every chunk to the source. The arena cannot be used afterwards.
func (a *Arena) Free() {
	if a.closed {
		return
	}
	a.retained = 0
	a.Purge()
	a.closed = true
}

// Stats returns the current arena statistics.
func (a *Arena) Stats() Stats { return a.stats }

// AllocatedMemory returns the bytes currently held from the source.
func (a *Arena) AllocatedMemory() int64 {
	return int64(a.stats.BytesReserved) //nolint:gosec // bounded by MaxChunks*MaxChunkSize
}

// Usage returns the used share of reserved memory, in percent.
func (a *Arena) Usage() float64 {
	if a.stats.BytesReserved == 0 {
		return 0
	}
	return float64(a.stats.BytesUsed) / float64(a.stats.BytesReserved) * 100
}

func (a *Arena) String() string {
	return fmt.Sprintf(
		"Arena{chunks: %d, reserved: %.2f MB, used: %.2f MB, wasted: %.2f KB, usage: %.1f%%, allocs: %d}",
		a.stats.ActiveChunks,
		float64(a.stats.BytesReserved)/(1024*1024),
		float64(a.stats.BytesUsed)/(1024*1024),
		float64(a.stats.BytesWasted)/1024,
		a.Usage(),
		a.stats.TotalAllocs,
	)
}

func alignUp(n, align int) int {
	mask := align - 1
	return (n + mask) &^ mask
}
