package undo

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/hupe1980/undolog/arena"
)

// DummyID is the quantum id reserved for the no-logging sentinel.
// It orders before every real token.
const DummyID int64 = math.MinInt64

// State is the lifecycle state of a quantum.
type State uint8

const (
	// Open quanta accept allocations and registrations.
	Open State = iota
	// Committed quanta have released every action.
	Committed
	// RolledBack quanta have undone every action.
	RolledBack
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Terminal reports whether s is Committed or RolledBack.
func (s State) Terminal() bool { return s == Committed || s == RolledBack }

// Handle names a registered action. It is valid only on the quantum that
// issued it, until that quantum commits or rolls back. The zero Handle is
// never valid.
type Handle struct {
	Index uint32
	Gen   uint64 // serial of the issuing quantum
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h == Handle{} }

// ReleaseInterest is notified once when a quantum it was registered with
// reaches a terminal state. Implementations must be comparable; registering
// the same interest twice notifies it once.
type ReleaseInterest interface {
	OnQuantumFinalized(id int64, state State)
}

// Coordinator serializes the finalization of actions on replicated tables.
// Finalize must call run exactly once before returning.
type Coordinator interface {
	Finalize(id int64, state State, a Action, run func())
}

// Observer receives quantum lifecycle events, typically for metrics.
type Observer interface {
	QuantumFinalized(id int64, state State, actions int, elapsed time.Duration)
	ArenaPurged(id int64, bytes int64)
}

// Quantum is the undo scope shared by UndoQuantum and DummyQuantum.
type Quantum interface {
	ID() int64
	IsDummy() bool
	State() State
	Allocate(n int) ([]byte, error)
	Register(a Action, interest ReleaseInterest) Handle
	Lookup(h Handle) (Action, bool)
	Commit()
	Rollback()
	AllocatedMemory() int64
	Len() int
}

type options struct {
	chunkSize       int
	retainedChunks  int
	maxPooledArenas int
	logger          *slog.Logger
	observer        Observer
	coordinator     Coordinator
}

// Option configures quanta and logs.
type Option func(*options)

// WithChunkSize sets the arena chunk size of quanta generated by a Log.
func WithChunkSize(size int) Option {
	return func(o *options) {
		o.chunkSize = size
	}
}

// WithRetainedChunks sets how many chunks a Log's arenas keep across purges.
func WithRetainedChunks(n int) Option {
	return func(o *options) {
		o.retainedChunks = n
	}
}

// WithMaxPooledArenas bounds the purged arenas a Log keeps for reuse.
func WithMaxPooledArenas(n int) Option {
	return func(o *options) {
		o.maxPooledArenas = max(n, 0)
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithCoordinator routes actions on replicated tables through c.
// Without a coordinator they are finalized inline.
func WithCoordinator(c Coordinator) Option {
	return func(o *options) {
		o.coordinator = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		chunkSize:       arena.UndoChunkSize,
		retainedChunks:  arena.DefaultRetainedChunks,
		maxPooledArenas: DefaultMaxPooledArenas,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return o
}

type slot struct {
	action Action
	done   bool
}

// UndoQuantum records the actions of one transaction.
type UndoQuantum struct {
	id         int64
	arena      *arena.Arena
	slots      []slot
	interests  []ReleaseInterest
	state      State
	gen        uint64
	finalizing bool
	opts       options
	log        *Log // set while a Log holds the quantum
}

var _ Quantum = (*UndoQuantum)(nil)

// NewQuantum returns an open quantum that carves payloads from a.
// The id must not be DummyID.
func NewQuantum(id int64, a *arena.Arena, opts ...Option) *UndoQuantum {
	if id == DummyID {
		violate("new quantum", id, "id is reserved for the dummy quantum")
	}
	if a == nil {
		violate("new quantum", id, "nil arena")
	}
	return newQuantum(id, a, applyOptions(opts))
}

var quantumSerial atomic.Uint64

func newQuantum(id int64, a *arena.Arena, o options) *UndoQuantum {
	return &UndoQuantum{
		id:    id,
		arena: a,
		gen:   quantumSerial.Add(1),
		opts:  o,
	}
}

// ID returns the quantum's token.
func (q *UndoQuantum) ID() int64 { return q.id }

// IsDummy always returns false.
func (q *UndoQuantum) IsDummy() bool { return false }

// State returns the lifecycle state.
func (q *UndoQuantum) State() State { return q.state }

// Len returns the number of registered actions not yet finalized.
func (q *UndoQuantum) Len() int {
	if q.state.Terminal() {
		return 0
	}
	return len(q.slots)
}

// AllocatedMemory returns the bytes held by the quantum's arena, or zero
// once the quantum has finished.
func (q *UndoQuantum) AllocatedMemory() int64 {
	if q.state.Terminal() || q.arena == nil {
		return 0
	}
	return q.arena.AllocatedMemory()
}

// Allocate carves n zeroed payload bytes that stay valid until the quantum
// commits or rolls back. Errors wrap arena.ErrOutOfMemory; the caller must
// then abandon the transaction.
func (q *UndoQuantum) Allocate(n int) ([]byte, error) {
	q.mustBeOpen("allocate")
	_, b, err := q.arena.Allocate(n)
	if err != nil {
		return nil, fmt.Errorf("quantum %d: %w", q.id, err)
	}
	return b, nil
}

// Register appends a to the quantum. A non-nil interest is notified when
// the quantum finishes.
func (q *UndoQuantum) Register(a Action, interest ReleaseInterest) Handle {
	q.mustBeOpen("register")
	if a == nil {
		violate("register", q.id, "nil action")
	}
	if uint64(len(q.slots)) >= math.MaxUint32 {
		violate("register", q.id, "too many actions")
	}

	q.slots = append(q.slots, slot{action: a})
	if interest != nil && !q.hasInterest(interest) {
		q.interests = append(q.interests, interest)
	}
	return Handle{Index: uint32(len(q.slots) - 1), Gen: q.gen} //nolint:gosec // bounded above
}

// Lookup returns the action registered under h, provided the quantum is
// still open.
func (q *UndoQuantum) Lookup(h Handle) (Action, bool) {
	if q.state != Open || h.Gen != q.gen || int(h.Index) >= len(q.slots) {
		return nil, false
	}
	s := q.slots[h.Index]
	if s.done {
		return nil, false
	}
	return s.action, true
}

// Commit releases every action in registration order and purges the arena.
func (q *UndoQuantum) Commit() {
	q.begin("commit")
	start := time.Now()
	for i := range q.slots {
		q.finalize(i, Committed)
	}
	q.finish(Committed, start)
}

// Rollback undoes every action in reverse registration order and purges the
// arena.
func (q *UndoQuantum) Rollback() {
	q.begin("rollback")
	start := time.Now()
	for i := len(q.slots) - 1; i >= 0; i-- {
		q.finalize(i, RolledBack)
	}
	q.finish(RolledBack, start)
}

func (q *UndoQuantum) mustBeOpen(op string) {
	if q.state != Open {
		violate(op, q.id, "quantum already %s", q.state)
	}
	if q.finalizing {
		violate(op, q.id, "quantum is finishing")
	}
}

func (q *UndoQuantum) begin(op string) {
	q.mustBeOpen(op)
	q.finalizing = true
}

func (q *UndoQuantum) finalize(i int, state State) {
	s := &q.slots[i]
	if s.done {
		violate(state.String(), q.id, "action %d finalized twice", i)
	}
	s.done = true
	finalizeAction(q.opts.coordinator, q.id, state, s.action, i)
	s.action = nil
}

// finalizeAction releases or undoes a, through c when a sits on a replicated
// table, then destroys it.
func finalizeAction(c Coordinator, id int64, state State, a Action, i int) {
	ran := false
	run := func() {
		if ran {
			violate(state.String(), id, "action %d finalized twice", i)
		}
		ran = true
		if state == Committed {
			a.Release()
		} else {
			a.Undo()
		}
	}

	if ra, ok := a.(ReplicatedTableAware); ok && c != nil && ra.IsReplicatedTable() {
		c.Finalize(id, state, a, run)
		if !ran {
			violate(state.String(), id, "coordinator skipped action %d", i)
		}
	} else {
		run()
	}

	if d, ok := a.(Destroyer); ok {
		d.Destroy()
	}
}

func (q *UndoQuantum) finish(state State, start time.Time) {
	actions := len(q.slots)
	purged := q.arena.AllocatedMemory()
	q.arena.Purge()

	clear(q.slots)
	q.slots = q.slots[:0]
	q.state = state
	q.finalizing = false

	if obs := q.opts.observer; obs != nil {
		obs.ArenaPurged(q.id, purged)
		obs.QuantumFinalized(q.id, state, actions, time.Since(start))
	}
	if q.opts.logger != nil {
		q.opts.logger.Debug("undo quantum finished",
			"quantum", q.id,
			"state", state.String(),
			"actions", actions,
			"purged_bytes", purged,
		)
	}

	if l := q.log; l != nil {
		q.log = nil
		l.detach(q)
	}

	interests := q.interests
	q.interests = nil
	for _, in := range interests {
		in.OnQuantumFinalized(q.id, state)
	}
}

func (q *UndoQuantum) hasInterest(in ReleaseInterest) bool {
	if !reflect.TypeOf(in).Comparable() {
		return false
	}
	for _, have := range q.interests {
		if reflect.TypeOf(have) == reflect.TypeOf(in) && have == in {
			return true
		}
	}
	return false
}
