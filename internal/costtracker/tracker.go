// Package costtracker accumulates spent and reserved cost for a pipeline run
// and enforces the budget ceiling. A single Tracker is shared across every
// goroutine participating in a run, so every operation is mutex-guarded.
package costtracker

import (
	"fmt"
	"sync"
)

// BudgetExceeded is returned when committing a cost (actual or reserved)
// would breach the configured budget ceiling.
type BudgetExceeded struct {
	Committed float64
	Budget    float64
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("budget exceeded: committed $%.4f against budget $%.4f", e.Committed, e.Budget)
}

// Tracker is the shared cost ledger for one pipeline run.
type Tracker struct {
	mu        sync.Mutex
	spentUSD  float64
	reserved  float64
	callCount int
}

// New returns an empty tracker.
func New() *Tracker { return &Tracker{} }

// AddCost records an actual, already-incurred cost. It never fails on its
// own — breaches surface at the next CheckBudget, per spec.
func (t *Tracker) AddCost(cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spentUSD += cost
	t.callCount++
}

// Reserve provisionally debits cost against budget for a stage that hasn't
// run yet. Fails without mutating state if spent+reserved+cost > budget.
func (t *Tracker) Reserve(cost float64, budget float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	committed := t.spentUSD + t.reserved + cost
	if budget > 0 && committed > budget {
		return &BudgetExceeded{Committed: committed, Budget: budget}
	}
	t.reserved += cost
	return nil
}

// Finalize converts a reservation into an actual cost: spent grows by
// actual, reserved shrinks by reservedAmount (never below zero — the two
// need not match exactly, since actual cost can differ from the estimate
// that was reserved).
func (t *Tracker) Finalize(reservedAmount, actual float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spentUSD += actual
	t.reserved -= reservedAmount
	if t.reserved < 0 {
		t.reserved = 0
	}
	t.callCount++
}

// ReleaseReservation drops a reservation without recording any spend,
// for a stage that failed before completing.
func (t *Tracker) ReleaseReservation(reservedAmount float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reserved -= reservedAmount
	if t.reserved < 0 {
		t.reserved = 0
	}
}

// CheckBudget fails if spent+reserved has already reached (not merely
// exceeded) budget: the budget is a hard ceiling, so "≥" is intentional
// here even though Reserve itself uses "&gt;".
func (t *Tracker) CheckBudget(budget float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	committed := t.spentUSD + t.reserved
	if budget > 0 && committed >= budget {
		return &BudgetExceeded{Committed: committed, Budget: budget}
	}
	return nil
}

// Reset zeroes the tracker, for reuse across unrelated runs.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spentUSD = 0
	t.reserved = 0
	t.callCount = 0
}

// Spent returns cumulative actual cost recorded so far.
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spentUSD
}

// Reserved returns the sum of all outstanding reservations.
func (t *Tracker) Reserved() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reserved
}

// Committed returns spent+reserved, the figure compared against budget.
func (t *Tracker) Committed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spentUSD + t.reserved
}

// CallCount returns how many AddCost/Finalize calls have been recorded.
func (t *Tracker) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callCount
}
