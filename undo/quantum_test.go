package undo

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/undolog/arena"
)

type trace struct {
	events []string
}

func (tr *trace) action(name string) *FuncAction {
	return &FuncAction{
		OnUndo:    func() { tr.events = append(tr.events, "undo("+name+")") },
		OnRelease: func() { tr.events = append(tr.events, "release("+name+")") },
		OnDestroy: func() { tr.events = append(tr.events, "destroy("+name+")") },
	}
}

func (tr *trace) filter(prefix string) []string {
	var out []string
	for _, e := range tr.events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			out = append(out, e)
		}
	}
	return out
}

type countingInterest struct {
	calls  int
	states []State
}

func (c *countingInterest) OnQuantumFinalized(_ int64, state State) {
	c.calls++
	c.states = append(c.states, state)
}

type recordingObserver struct {
	finalized []State
	actions   []int
	purged    int64
}

func (r *recordingObserver) QuantumFinalized(_ int64, state State, actions int, _ time.Duration) {
	r.finalized = append(r.finalized, state)
	r.actions = append(r.actions, actions)
}

func (r *recordingObserver) ArenaPurged(_ int64, bytes int64) { r.purged += bytes }

type table struct{ replicated bool }

func (t *table) IsReplicated() bool { return t.replicated }

func newTestQuantum(t *testing.T, id int64, opts ...Option) *UndoQuantum {
	t.Helper()
	a, err := arena.New(nil, arena.WithChunkSize(256))
	require.NoError(t, err)
	return NewQuantum(id, a, opts...)
}

func requireViolation(t *testing.T, fn func()) *ContractViolation {
	t.Helper()
	var cv *ContractViolation
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected panic")
			var ok bool
			cv, ok = r.(*ContractViolation)
			require.True(t, ok, "expected *ContractViolation, got %T", r)
		}()
		fn()
	}()
	return cv
}

func TestQuantum_CommitOrder(t *testing.T) {
	tr := &trace{}
	q := newTestQuantum(t, 1)
	for _, name := range []string{"A", "B", "C"} {
		q.Register(tr.action(name), nil)
	}
	assert.Equal(t, 3, q.Len())

	q.Commit()

	assert.Equal(t, Committed, q.State())
	assert.Equal(t, []string{
		"release(A)", "destroy(A)",
		"release(B)", "destroy(B)",
		"release(C)", "destroy(C)",
	}, tr.events)
	assert.Empty(t, tr.filter("undo"))
	assert.Zero(t, q.Len())
}

func TestQuantum_RollbackOrder(t *testing.T) {
	tr := &trace{}
	q := newTestQuantum(t, 1)
	for _, name := range []string{"A", "B", "C"} {
		q.Register(tr.action(name), nil)
	}

	q.Rollback()

	assert.Equal(t, RolledBack, q.State())
	assert.Equal(t, []string{"undo(C)", "undo(B)", "undo(A)"}, tr.filter("undo"))
	assert.Empty(t, tr.filter("release"))
	assert.Len(t, tr.filter("destroy"), 3)
}

func TestQuantum_ExactlyOnce(t *testing.T) {
	for _, n := range []int{0, 1, 7, 100} {
		n := n
		for _, commit := range []bool{true, false} {
			commit := commit
			t.Run(fmt.Sprintf("n=%d/commit=%v", n, commit), func(t *testing.T) {
				undos := make([]int, n)
				releases := make([]int, n)
				q := newTestQuantum(t, 1)
				for i := 0; i < n; i++ {
					i := i
					q.Register(&FuncAction{
						OnUndo:    func() { undos[i]++ },
						OnRelease: func() { releases[i]++ },
					}, nil)
				}

				if commit {
					q.Commit()
				} else {
					q.Rollback()
				}

				for i := 0; i < n; i++ {
					if commit {
						assert.Equal(t, 1, releases[i])
						assert.Zero(t, undos[i])
					} else {
						assert.Equal(t, 1, undos[i])
						assert.Zero(t, releases[i])
					}
				}
			})
		}
	}
}

func TestQuantum_TerminalIsOneWay(t *testing.T) {
	tests := []struct {
		name   string
		finish func(q *UndoQuantum)
		next   func(q *UndoQuantum)
	}{
		{"commit then commit", (*UndoQuantum).Commit, (*UndoQuantum).Commit},
		{"commit then rollback", (*UndoQuantum).Commit, (*UndoQuantum).Rollback},
		{"rollback then commit", (*UndoQuantum).Rollback, (*UndoQuantum).Commit},
		{"rollback then rollback", (*UndoQuantum).Rollback, (*UndoQuantum).Rollback},
		{"register after commit", (*UndoQuantum).Commit, func(q *UndoQuantum) { q.Register(&FuncAction{}, nil) }},
		{"allocate after rollback", (*UndoQuantum).Rollback, func(q *UndoQuantum) { _, _ = q.Allocate(8) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			q := newTestQuantum(t, 9)
			q.Register(&FuncAction{}, nil)
			tt.finish(q)
			state := q.State()

			cv := requireViolation(t, func() { tt.next(q) })
			assert.Equal(t, int64(9), cv.Quantum)
			assert.Equal(t, state, q.State())
		})
	}
}

func TestQuantum_RegisterDuringFinish(t *testing.T) {
	q := newTestQuantum(t, 1)
	var inner *ContractViolation
	q.Register(&FuncAction{OnRelease: func() {
		inner = requireViolation(t, func() { q.Register(&FuncAction{}, nil) })
	}}, nil)

	q.Commit()
	require.NotNil(t, inner)
	assert.Equal(t, "register", inner.Op)
}

func TestQuantum_NilAction(t *testing.T) {
	q := newTestQuantum(t, 1)
	requireViolation(t, func() { q.Register(nil, nil) })
}

func TestQuantum_ReservedID(t *testing.T) {
	a, err := arena.New(nil)
	require.NoError(t, err)
	requireViolation(t, func() { NewQuantum(DummyID, a) })
}

func TestQuantum_ReleaseInterest(t *testing.T) {
	for _, commit := range []bool{true, false} {
		commit := commit
		t.Run(fmt.Sprintf("commit=%v", commit), func(t *testing.T) {
			q := newTestQuantum(t, 4)
			shared := &countingInterest{}
			other := &countingInterest{}

			var seenInAction int
			q.Register(&FuncAction{
				OnRelease: func() { seenInAction = shared.calls },
				OnUndo:    func() { seenInAction = shared.calls },
			}, shared)
			q.Register(&FuncAction{}, shared)
			q.Register(&FuncAction{}, other)
			q.Register(&FuncAction{}, nil)

			want := RolledBack
			if commit {
				want = Committed
				q.Commit()
			} else {
				q.Rollback()
			}

			assert.Zero(t, seenInAction, "interests fire after all actions")
			assert.Equal(t, 1, shared.calls)
			assert.Equal(t, 1, other.calls)
			assert.Equal(t, []State{want}, shared.states)
		})
	}
}

func TestQuantum_Handles(t *testing.T) {
	q := newTestQuantum(t, 1)
	a := &FuncAction{}
	b := &FuncAction{}

	ha := q.Register(a, nil)
	hb := q.Register(b, nil)
	assert.NotEqual(t, ha, hb)
	assert.False(t, ha.IsZero())

	got, ok := q.Lookup(ha)
	require.True(t, ok)
	assert.Same(t, a, got)
	got, ok = q.Lookup(hb)
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = q.Lookup(Handle{})
	assert.False(t, ok)
	_, ok = q.Lookup(Handle{Index: 7, Gen: ha.Gen})
	assert.False(t, ok)

	q.Commit()
	_, ok = q.Lookup(ha)
	assert.False(t, ok, "handles go stale at the terminal transition")
}

func TestQuantum_HandlesBoundToQuantum(t *testing.T) {
	a := newTestQuantum(t, 1)
	b := newTestQuantum(t, 1)
	b.Register(&FuncAction{}, nil)

	h := a.Register(&FuncAction{}, nil)
	_, ok := b.Lookup(h)
	assert.False(t, ok, "same id, same slot, different quantum")

	l := newTestLog(t)
	first, err := l.Generate(1)
	require.NoError(t, err)
	stale := first.Register(&FuncAction{}, nil)
	l.Undo(1)

	again, err := l.Generate(1)
	require.NoError(t, err)
	again.Register(&FuncAction{}, nil)
	_, ok = again.Lookup(stale)
	assert.False(t, ok, "regenerated token on a recycled arena")
}

func TestQuantum_Allocate(t *testing.T) {
	obs := &recordingObserver{}
	q := newTestQuantum(t, 1, WithObserver(obs))

	before, err := q.Allocate(24)
	require.NoError(t, err)
	require.Len(t, before, 24)
	copy(before, "row before-image")

	var restored string
	q.Register(&FuncAction{OnUndo: func() { restored = string(before[:16]) }}, nil)
	assert.Equal(t, int64(256), q.AllocatedMemory())

	q.Rollback()
	assert.Equal(t, "row before-image", restored)
	assert.Zero(t, q.AllocatedMemory())
	assert.Equal(t, int64(256), obs.purged)
	assert.Equal(t, []State{RolledBack}, obs.finalized)
	assert.Equal(t, []int{1}, obs.actions)
}

func TestQuantum_OutOfMemory(t *testing.T) {
	a, err := arena.New(failingSource{}, arena.WithChunkSize(64))
	require.NoError(t, err)
	q := NewQuantum(1, a)

	_, err = q.Allocate(8)
	require.ErrorIs(t, err, arena.ErrOutOfMemory)
	assert.Equal(t, Open, q.State(), "the caller decides to abort")
}

type failingSource struct{}

func (failingSource) AcquireChunk(int) ([]byte, error) { return nil, errors.New("exhausted") }
func (failingSource) ReleaseChunk([]byte)              {}

func TestState_String(t *testing.T) {
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "committed", Committed.String())
	assert.Equal(t, "rolled back", RolledBack.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.False(t, Open.Terminal())
	assert.True(t, Committed.Terminal())
}
