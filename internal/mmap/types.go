package mmap

import "errors"

// AccessPattern provides hints to the kernel about how a mapping will be used.
type AccessPattern int

const (
	// AccessDefault is the default access pattern (no specific advice).
	AccessDefault AccessPattern = iota
	// AccessWillNeed expects the pages to be touched soon.
	AccessWillNeed
	// AccessDontNeed lets the kernel reclaim the pages; contents read back as zero.
	AccessDontNeed
)

var (
	// ErrClosed is returned when using a mapping after Close.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned for non-positive mapping sizes.
	ErrInvalidSize = errors.New("mmap: invalid size")
)
