package arena

// ChunkSource supplies and takes back the raw chunks of an arena.
// The size-class pool registry of a partition is the usual source.
type ChunkSource interface {
	AcquireChunk(size int) ([]byte, error)
	ReleaseChunk(b []byte)
}

// HeapSource allocates chunks with make and lets the collector reclaim them.
// It suits tests and arenas that do not share a partition budget.
type HeapSource struct{}

// AcquireChunk implements ChunkSource.
func (HeapSource) AcquireChunk(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// ReleaseChunk implements ChunkSource.
func (HeapSource) ReleaseChunk([]byte) {}
