package core

import (
	"fmt"
	"sync"
)

// TurnBudget enforces the maximum number of turns of one case run.
type TurnBudget struct {
	max  int
	used int
	mu   sync.Mutex
}

// NewTurnBudget creates a budget of max turns.
// If max == 0, unlimited turns are allowed.
func NewTurnBudget(max int) *TurnBudget {
	return &TurnBudget{max: max}
}

// Consume takes one turn from the budget and returns ErrBudgetExceeded once
// none is left. A failed Consume does not count.
func (b *TurnBudget) Consume() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.used >= b.max {
		return fmt.Errorf("%w: %d", ErrBudgetExceeded, b.max)
	}

	b.used++

	return nil
}

// Used returns the number of turns consumed.
func (b *TurnBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.used
}

// Remaining returns how many turns are left before hitting the limit.
func (b *TurnBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max == 0 {
		return -1 // unlimited
	}

	return b.max - b.used
}

// Exhausted reports whether no turn is left.
func (b *TurnBudget) Exhausted() bool {
	return b.Remaining() == 0
}
