package undo

import (
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/undolog/arena"
)

// DefaultMaxPooledArenas is the default number of purged arenas a Log keeps.
const DefaultMaxPooledArenas = 16

// Log hands out undo quanta ordered by token and finishes them in bulk.
//
// Tokens grow monotonically. Undo(t) rolls back the quanta at or above t,
// newest first, and lets t be generated again. Release(t) commits the
// quanta at or below t, oldest first; tokens at or below t can never be
// generated again. A quantum committed or rolled back directly leaves the
// log at that moment.
type Log struct {
	src         arena.ChunkSource
	opts        options
	quanta      []*UndoQuantum // ascending token
	pooled      []*arena.Arena
	dummy       *DummyQuantum
	lastUndo    int64
	lastRelease int64
	closed      bool
}

// NewLog returns an empty log whose arenas draw chunks from src.
// A nil src uses the Go heap.
func NewLog(src arena.ChunkSource, opts ...Option) (*Log, error) {
	o := applyOptions(opts)

	da, err := arena.New(src, arena.WithChunkSize(o.chunkSize), arena.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	return &Log{
		src:         src,
		opts:        o,
		dummy:       &DummyQuantum{arena: da, opts: o},
		lastUndo:    math.MinInt64,
		lastRelease: math.MinInt64,
	}, nil
}

// Dummy returns the log's dummy quantum.
func (l *Log) Dummy() *DummyQuantum { return l.dummy }

// Len returns the number of open quanta.
func (l *Log) Len() int { return len(l.quanta) }

// Pooled returns the number of purged arenas kept for reuse.
func (l *Log) Pooled() int { return len(l.pooled) }

// Size returns the bytes held by the arenas of open quanta.
func (l *Log) Size() int64 {
	var n int64
	for _, q := range l.quanta {
		n += q.AllocatedMemory()
	}
	return n
}

// LastUndoToken returns the highest token that may not be generated again
// before the next undo.
func (l *Log) LastUndoToken() int64 { return l.lastUndo }

// LastReleaseToken returns the highest released token.
func (l *Log) LastReleaseToken() int64 { return l.lastRelease }

// Generate opens a quantum for token. The token must be greater than every
// token generated or released so far.
func (l *Log) Generate(token int64) (*UndoQuantum, error) {
	if l.closed {
		return nil, ErrClosed
	}
	if token <= l.lastUndo {
		violate("generate", token, "token not above last generated token %d", l.lastUndo)
	}
	if token <= l.lastRelease {
		violate("generate", token, "token not above last released token %d", l.lastRelease)
	}

	a, err := l.takeArena()
	if err != nil {
		return nil, fmt.Errorf("generate quantum %d: %w", token, err)
	}

	q := newQuantum(token, a, l.opts)
	q.log = l
	l.quanta = append(l.quanta, q)
	l.lastUndo = token
	return q, nil
}

// Undo rolls back every quantum with a token at or above token, newest
// first. Tokens above the last generated one are ignored.
func (l *Log) Undo(token int64) {
	if token > l.lastUndo || token == DummyID {
		return
	}
	l.lastUndo = token - 1

	for len(l.quanta) > 0 {
		last := len(l.quanta) - 1
		q := l.quanta[last]
		if q.id < token {
			break
		}
		l.quanta[last] = nil
		l.quanta = l.quanta[:last]

		q.log = nil
		q.Rollback()
		l.recycle(q)
	}
}

// Release commits every quantum with a token at or below token, oldest
// first. The token must be greater than the last released token.
func (l *Log) Release(token int64) {
	if token <= l.lastRelease {
		violate("release", token, "token not above last released token %d", l.lastRelease)
	}
	l.lastRelease = token

	for len(l.quanta) > 0 && l.quanta[0].id <= token {
		q := l.quanta[0]
		l.quanta[0] = nil
		l.quanta = l.quanta[1:]

		q.log = nil
		q.Commit()
		l.recycle(q)
	}
}

// detach drops a quantum that finished outside Undo and Release.
func (l *Log) detach(q *UndoQuantum) {
	i := slices.Index(l.quanta, q)
	if i < 0 {
		return
	}
	l.quanta = slices.Delete(l.quanta, i, i+1)
	l.recycle(q)
}

// Close frees every pooled arena. It fails with ErrOutstandingQuanta while
// quanta are open, leaving the log usable.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	if len(l.quanta) > 0 {
		return fmt.Errorf("%w: %d open, oldest token %d", ErrOutstandingQuanta, len(l.quanta), l.quanta[0].id)
	}
	l.closed = true

	for _, a := range l.pooled {
		a.Free()
	}
	l.pooled = nil
	l.dummy.arena.Free()
	return nil
}

func (l *Log) takeArena() (*arena.Arena, error) {
	if n := len(l.pooled); n > 0 {
		a := l.pooled[n-1]
		l.pooled[n-1] = nil
		l.pooled = l.pooled[:n-1]
		return a, nil
	}
	a, err := arena.New(l.src,
		arena.WithChunkSize(l.opts.chunkSize),
		arena.WithRetainedChunks(l.opts.retainedChunks),
		arena.WithLogger(l.opts.logger),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// recycle keeps the purged arena of a finished quantum for reuse.
func (l *Log) recycle(q *UndoQuantum) {
	a := q.arena
	q.arena = nil
	if len(l.pooled) < l.opts.maxPooledArenas {
		l.pooled = append(l.pooled, a)
		return
	}
	a.Free()
}
