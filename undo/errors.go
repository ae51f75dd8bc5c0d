package undo

import (
	"errors"
	"fmt"
)

var (
	// ErrOutstandingQuanta is returned by Log.Close while quanta are still open.
	ErrOutstandingQuanta = errors.New("undo: outstanding quanta")
	// ErrClosed is returned when generating a quantum from a closed log.
	ErrClosed = errors.New("undo: log closed")
)

// ContractViolation reports caller misuse of a quantum or log, such as
// registering with a finished quantum or committing twice. It is raised with
// panic: continuing would break undo ordering.
type ContractViolation struct {
	Op      string
	Quantum int64
	Reason  string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("undo: %s on quantum %d: %s", e.Op, e.Quantum, e.Reason)
}

func violate(op string, id int64, format string, args ...any) {
	panic(&ContractViolation{Op: op, Quantum: id, Reason: fmt.Sprintf(format, args...)})
}
