package undo

// Action is one reversible mutation registered with a quantum.
// The quantum calls exactly one of Undo or Release, exactly once.
type Action interface {
	// Undo reverses the mutation. Called on rollback.
	Undo()
	// Release finalizes the mutation. Called on commit.
	Release()
}

// Destroyer is implemented by actions that hold resources beyond the
// quantum's arena. Destroy runs after Undo or Release, before the arena
// backing the action's payload is purged.
type Destroyer interface {
	Destroy()
}

// ReplicatedTableAware is implemented by actions that mutate a table which
// may be replicated across partitions.
type ReplicatedTableAware interface {
	IsReplicatedTable() bool
}

// Table is the view of a table an action needs to answer replication queries.
type Table interface {
	IsReplicated() bool
}

// FuncAction adapts callbacks to Action. Nil callbacks are skipped.
type FuncAction struct {
	OnUndo    func()
	OnRelease func()
	OnDestroy func()
}

// Undo implements Action.
func (a *FuncAction) Undo() {
	if a.OnUndo != nil {
		a.OnUndo()
	}
}

// Release implements Action.
func (a *FuncAction) Release() {
	if a.OnRelease != nil {
		a.OnRelease()
	}
}

// Destroy implements Destroyer.
func (a *FuncAction) Destroy() {
	if a.OnDestroy != nil {
		a.OnDestroy()
	}
}

// ReplicatedAction wraps an action on a table whose replication state is
// decided at finalization time.
type ReplicatedAction struct {
	Inner Action
	Table Table
}

// NewReplicatedAction returns inner bound to table.
func NewReplicatedAction(inner Action, table Table) *ReplicatedAction {
	return &ReplicatedAction{Inner: inner, Table: table}
}

// Undo implements Action.
func (a *ReplicatedAction) Undo() { a.Inner.Undo() }

// Release implements Action.
func (a *ReplicatedAction) Release() { a.Inner.Release() }

// Destroy implements Destroyer by forwarding to the inner action.
func (a *ReplicatedAction) Destroy() {
	if d, ok := a.Inner.(Destroyer); ok {
		d.Destroy()
	}
}

// IsReplicatedTable reports the table's replication flag as of now.
func (a *ReplicatedAction) IsReplicatedTable() bool {
	return a.Table != nil && a.Table.IsReplicated()
}

// ReplicatedNoopAction marks an already applied, idempotent change to a
// table so that a coordinator can still query its replication state.
// Undo and Release do nothing.
type ReplicatedNoopAction struct {
	Table Table
}

// Undo implements Action.
func (ReplicatedNoopAction) Undo() {}

// Release implements Action.
func (ReplicatedNoopAction) Release() {}

// IsReplicatedTable reports the table's replication flag as of now.
func (a ReplicatedNoopAction) IsReplicatedTable() bool {
	return a.Table != nil && a.Table.IsReplicated()
}
