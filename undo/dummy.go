package undo

import (
	"fmt"
	"time"

	"github.com/hupe1980/undolog/arena"
)

// DummyQuantum is the quantum used where no rollback is possible or wanted.
// Register finalizes the action on the spot, so the quantum never holds
// state between calls.
type DummyQuantum struct {
	arena *arena.Arena
	opts  options
}

var _ Quantum = (*DummyQuantum)(nil)

// NewDummyQuantum returns a dummy quantum carving payloads from a.
func NewDummyQuantum(a *arena.Arena, opts ...Option) *DummyQuantum {
	if a == nil {
		violate("new quantum", DummyID, "nil arena")
	}
	return &DummyQuantum{arena: a, opts: applyOptions(opts)}
}

// ID returns DummyID.
func (d *DummyQuantum) ID() int64 { return DummyID }

// IsDummy always returns true.
func (d *DummyQuantum) IsDummy() bool { return true }

// State always returns Open.
func (d *DummyQuantum) State() State { return Open }

// Len always returns zero.
func (d *DummyQuantum) Len() int { return 0 }

// AllocatedMemory returns the bytes held by the dummy's arena.
func (d *DummyQuantum) AllocatedMemory() int64 { return d.arena.AllocatedMemory() }

// Allocate carves n zeroed bytes valid until the next Register.
func (d *DummyQuantum) Allocate(n int) ([]byte, error) {
	_, b, err := d.arena.Allocate(n)
	if err != nil {
		return nil, fmt.Errorf("dummy quantum: %w", err)
	}
	return b, nil
}

// Register releases a, destroys it and purges the arena before returning.
// Actions on replicated tables are released through the coordinator.
// The interest is not retained: a dummy quantum never finishes. The returned
// Handle is always the zero Handle.
func (d *DummyQuantum) Register(a Action, _ ReleaseInterest) Handle {
	if a == nil {
		violate("register", DummyID, "nil action")
	}
	start := time.Now()

	finalizeAction(d.opts.coordinator, DummyID, Committed, a, 0)
	purged := d.arena.AllocatedMemory()
	d.arena.Purge()

	if obs := d.opts.observer; obs != nil {
		obs.ArenaPurged(DummyID, purged)
		obs.QuantumFinalized(DummyID, Committed, 1, time.Since(start))
	}
	return Handle{}
}

// Lookup never finds an action.
func (d *DummyQuantum) Lookup(Handle) (Action, bool) { return nil, false }

// Commit is a no-op: every action was released at registration.
func (d *DummyQuantum) Commit() {}

// Rollback panics. Nothing registered with a dummy quantum can be undone, so
// a rollback request is a logic error in the caller.
func (d *DummyQuantum) Rollback() {
	violate("rollback", DummyID, "dummy quantum cannot roll back")
}
