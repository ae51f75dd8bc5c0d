package pool

import (
	"fmt"

	"github.com/hupe1980/undolog/internal/mem"
	"github.com/hupe1980/undolog/internal/mmap"
)

// largeChunk is an arena chunk above MaxPooledSize. It is reserved and
// returned on its own instead of going through a Pool.
type largeChunk struct {
	data    []byte
	mapping *mmap.Mapping
}

func (r *Registry) acquireLarge(size int) ([]byte, error) {
	if err := r.controller.AcquireMemory(int64(size)); err != nil {
		r.logOOM(size, size, err)
		return nil, fmt.Errorf("%w: chunk of %d bytes: %w", ErrOutOfMemory, size, err)
	}

	c := &largeChunk{}
	if r.offHeap {
		m, err := mmap.MapAnon(size)
		if err != nil {
			r.controller.ReleaseMemory(int64(size))
			r.logOOM(size, size, err)
			return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
		c.mapping = m
		c.data = m.Bytes()[:size:size]
	} else {
		c.data = mem.AllocAligned(size, mem.CacheLine)
	}

	if r.large == nil {
		r.large = make(map[uintptr]*largeChunk)
	}
	r.large[mem.Addr(c.data)] = c
	r.reserved += int64(size)
	return c.data, nil
}

func (r *Registry) releaseLarge(b []byte) {
	addr := mem.Addr(b)
	c, ok := r.large[addr]
	if !ok || len(c.data) != len(b) {
		violate("release chunk", "pointer %#x is not a live chunk of %d bytes in partition %d", addr, len(b), r.partition)
	}
	delete(r.large, addr)
	r.freeLarge(c)
}

func (r *Registry) freeLarge(c *largeChunk) {
	size := len(c.data)
	if c.mapping != nil {
		_ = c.mapping.Close()
	}
	c.data = nil
	r.controller.ReleaseMemory(int64(size))
	r.reserved -= int64(size)
}
