package pool

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/undolog/internal/mem"
	"github.com/hupe1980/undolog/internal/mmap"
)

const (
	// MaxSlabBytes caps the size of one slab for blocks below LargeBlockSize.
	MaxSlabBytes = 2 << 20
	// LargeBlockSize is the block size from which a slab holds only two blocks.
	LargeBlockSize = 256 << 10
	// MaxSlabs bounds the slabs of one pool; it keeps block ids within 32 bits.
	MaxSlabs = 1 << 12

	initialSlabBlocks = 32
	largeSlabBlocks   = 2
	blockAlign        = 8
	blockIndexBits    = 20
)

// Stats describes a pool's memory.
type Stats struct {
	Size          int   // exact block size served
	Stride        int   // aligned distance between blocks
	Slabs         int   // slabs held
	Capacity      int   // blocks across all slabs
	InUse         int   // blocks handed out and not yet returned
	BytesReserved int64 // slab bytes reserved against the budget
}

type slab struct {
	data    []byte
	base    uintptr
	mapping *mmap.Mapping
	free    *bitset.BitSet // set bit: block is free
	nfree   uint
	index   int
}

func (s *slab) contains(addr uintptr) bool {
	return addr >= s.base && addr < s.base+uintptr(len(s.data))
}

// Pool serves blocks of exactly one size. It is confined to the partition
// that owns its Registry.
type Pool struct {
	reg        *Registry
	size       int
	stride     int
	maxBlocks  int
	nextBlocks int

	slabs  []*slab
	byAddr []*slab // sorted by base address
	avail  []int   // slabs with at least one free block

	inUse    int
	reserved int64
	live     *roaring.Bitmap // checking mode only
	released bool
}

func newPool(reg *Registry, size int) *Pool {
	stride := mem.AlignUp(size, blockAlign)

	maxBlocks := largeSlabBlocks
	if stride < LargeBlockSize {
		maxBlocks = max(1, MaxSlabBytes/stride)
	}

	p := &Pool{
		reg:        reg,
		size:       size,
		stride:     stride,
		maxBlocks:  maxBlocks,
		nextBlocks: min(initialSlabBlocks, maxBlocks),
	}
	if reg.checking {
		p.live = roaring.New()
	}
	return p
}

// Size returns the exact block size served by the pool.
func (p *Pool) Size() int { return p.size }

// InUse returns the number of blocks currently allocated.
func (p *Pool) InUse() int { return p.inUse }

// Capacity returns the number of blocks the pool can serve without growing.
func (p *Pool) Capacity() int {
	n := 0
	for _, s := range p.slabs {
		n += int(s.free.Len())
	}
	return n
}

// Stats returns the pool's current statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:          p.size,
		Stride:        p.stride,
		Slabs:         len(p.slabs),
		Capacity:      p.Capacity(),
		InUse:         p.inUse,
		BytesReserved: p.reserved,
	}
}

// Allocate returns a zeroed block of Size() bytes.
func (p *Pool) Allocate() ([]byte, error) {
	if p.released {
		return nil, ErrClosed
	}
	if len(p.avail) == 0 {
		if err := p.grow(); err != nil {
			return nil, err
		}
	}

	top := len(p.avail) - 1
	s := p.slabs[p.avail[top]]
	idx, ok := s.free.NextSet(0)
	if !ok {
		violate("allocate", "slab %d of size %d listed as available but full", s.index, p.size)
	}
	s.free.Clear(idx)
	s.nfree--
	if s.nfree == 0 {
		p.avail = p.avail[:top]
	}
	p.inUse++

	if p.live != nil {
		id := blockID(s.index, idx)
		if !p.live.CheckedAdd(id) {
			violate("allocate", "block %d of size %d handed out twice", id, p.size)
		}
	}

	off := int(idx) * p.stride
	b := s.data[off : off+p.size : off+p.size]
	clear(b)
	return b, nil
}

// Deallocate returns a block obtained from Allocate.
// Freeing a block twice, or memory this pool never handed out, panics.
func (p *Pool) Deallocate(b []byte) {
	if p.released {
		violate("deallocate", "pool of size %d already released", p.size)
	}
	addr := mem.Addr(b)
	s := p.find(addr)
	if s == nil {
		violate("deallocate", "pointer %#x was not allocated by pool of size %d", addr, p.size)
	}

	off := int(addr - s.base)
	if off%p.stride != 0 {
		violate("deallocate", "pointer %#x is not a block boundary in pool of size %d", addr, p.size)
	}
	idx := uint(off / p.stride)
	if s.free.Test(idx) {
		violate("deallocate", "block %d of size %d freed twice", idx, p.size)
	}

	s.free.Set(idx)
	s.nfree++
	if s.nfree == 1 {
		p.avail = append(p.avail, s.index)
	}
	p.inUse--

	if p.live != nil {
		p.live.Remove(blockID(s.index, idx))
	}
}

// Release frees every slab. Blocks still in use are reported with
// ErrLeakedBlocks; their memory is reclaimed regardless.
func (p *Pool) Release() error {
	if p.released {
		return nil
	}
	p.released = true

	var err error
	if p.inUse > 0 {
		err = fmt.Errorf("%w: %d blocks of size %d", ErrLeakedBlocks, p.inUse, p.size)
		p.reportLeaks()
	}

	for _, s := range p.slabs {
		if s.mapping != nil {
			_ = s.mapping.Close()
		}
		s.data = nil
	}
	p.reg.controller.ReleaseMemory(p.reserved)
	p.reg.reserved -= p.reserved

	p.slabs, p.byAddr, p.avail = nil, nil, nil
	p.reserved, p.inUse = 0, 0
	return err
}

func (p *Pool) reportLeaks() {
	if p.reg.logger == nil {
		return
	}
	attrs := []any{"partition", p.reg.partition, "size", p.size, "blocks", p.inUse}
	if p.live != nil {
		var ids []uint32
		it := p.live.Iterator()
		for it.HasNext() && len(ids) < 8 {
			ids = append(ids, it.Next())
		}
		attrs = append(attrs, "first_ids", ids)
	}
	p.reg.logger.Error("missing deallocation", attrs...)
}

func (p *Pool) grow() error {
	if len(p.slabs) >= MaxSlabs {
		return fmt.Errorf("%w: pool of size %d reached %d slabs", ErrOutOfMemory, p.size, MaxSlabs)
	}

	blocks := p.nextBlocks
	bytes := blocks * p.stride
	if err := p.reg.controller.AcquireMemory(int64(bytes)); err != nil {
		p.reg.logOOM(p.size, bytes, err)
		return fmt.Errorf("%w: slab of %d bytes for size %d: %w", ErrOutOfMemory, bytes, p.size, err)
	}

	s := &slab{
		free:  bitset.New(uint(blocks)),
		nfree: uint(blocks),
		index: len(p.slabs),
	}
	if p.reg.offHeap {
		m, err := mmap.MapAnon(bytes)
		if err != nil {
			p.reg.controller.ReleaseMemory(int64(bytes))
			p.reg.logOOM(p.size, bytes, err)
			return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
		_ = m.Advise(mmap.AccessWillNeed) // blocks are handed out front to back
		s.mapping = m
		s.data = m.Bytes()
	} else {
		s.data = mem.AllocAligned(bytes, mem.CacheLine)
	}
	s.base = mem.Addr(s.data)
	s.free.FlipRange(0, uint(blocks))

	p.slabs = append(p.slabs, s)
	p.avail = append(p.avail, s.index)
	p.insertByAddr(s)
	p.reserved += int64(bytes)
	p.reg.reserved += int64(bytes)
	p.nextBlocks = min(p.nextBlocks*2, p.maxBlocks)

	if p.reg.logger != nil {
		p.reg.logger.Debug("pool slab added",
			"partition", p.reg.partition,
			"size", p.size,
			"blocks", blocks,
			"slabs", len(p.slabs),
		)
	}
	return nil
}

func (p *Pool) insertByAddr(s *slab) {
	i := sort.Search(len(p.byAddr), func(i int) bool { return p.byAddr[i].base > s.base })
	p.byAddr = append(p.byAddr, nil)
	copy(p.byAddr[i+1:], p.byAddr[i:])
	p.byAddr[i] = s
}

func (p *Pool) find(addr uintptr) *slab {
	if addr == 0 {
		return nil
	}
	i := sort.Search(len(p.byAddr), func(i int) bool { return p.byAddr[i].base > addr }) - 1
	if i < 0 || !p.byAddr[i].contains(addr) {
		return nil
	}
	return p.byAddr[i]
}

func blockID(slabIndex int, block uint) uint32 {
	return uint32(slabIndex)<<blockIndexBits | uint32(block) //nolint:gosec // slabIndex < MaxSlabs, block < 1<<blockIndexBits
}
