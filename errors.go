package undolog

import (
	"errors"
	"fmt"

	"github.com/hupe1980/undolog/arena"
	"github.com/hupe1980/undolog/pool"
	"github.com/hupe1980/undolog/resource"
	"github.com/hupe1980/undolog/undo"
)

var (
	// ErrOutOfMemory unifies budget, pool and arena exhaustion.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrClosed is returned when using a closed partition.
	ErrClosed = errors.New("partition closed")

	// ErrOutstandingQuanta is returned by Close while transactions are open.
	ErrOutstandingQuanta = undo.ErrOutstandingQuanta

	// ErrLeakedBlocks is returned by Close when pool blocks were never freed.
	ErrLeakedBlocks = pool.ErrLeakedBlocks
)

// IsOutOfMemory reports whether err stems from memory exhaustion anywhere
// in the allocation stack.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOutOfMemory) ||
		errors.Is(err, arena.ErrOutOfMemory) ||
		errors.Is(err, pool.ErrOutOfMemory) ||
		errors.Is(err, resource.ErrMemoryLimitExceeded)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOutOfMemory) {
		return err
	}
	if IsOutOfMemory(err) {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	if errors.Is(err, undo.ErrClosed) || errors.Is(err, pool.ErrClosed) || errors.Is(err, arena.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return err
}
