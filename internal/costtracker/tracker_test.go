package costtracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveThenAddCostThenBudgetBreach(t *testing.T) {
	// Mirrors spec scenario 3: budget 0.015, two stages costing 0.01 each.
	tr := New()
	budget := 0.015

	require.NoError(t, tr.Reserve(0.01, budget))
	tr.Finalize(0.01, 0.01)
	assert.InDelta(t, 0.01, tr.Spent(), 1e-9)

	err := tr.Reserve(0.01, budget)
	require.Error(t, err)
	var be *BudgetExceeded
	require.ErrorAs(t, err, &be)
	assert.InDelta(t, 0.02, be.Committed, 1e-9)
	assert.InDelta(t, budget, be.Budget, 1e-9)
}

func TestCommittedInvariantHolds(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Reserve(1.0, 10.0))
	tr.AddCost(0.5)
	assert.InDelta(t, tr.Spent()+tr.Reserved(), tr.Committed(), 1e-9)
	assert.GreaterOrEqual(t, tr.Spent(), 0.0)
	assert.GreaterOrEqual(t, tr.Reserved(), 0.0)
}

func TestCheckBudgetUsesGreaterOrEqual(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Reserve(5.0, 5.0))
	// committed == budget exactly -> must fail (hard ceiling).
	err := tr.CheckBudget(5.0)
	require.Error(t, err)
}

func TestFinalizeNeverDrivesReservedNegative(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Reserve(1.0, 100))
	tr.Finalize(5.0, 2.0) // reservedAmount larger than what was reserved
	assert.Equal(t, 0.0, tr.Reserved())
}

func TestConcurrentReserveIsSerialized(t *testing.T) {
	tr := New()
	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = tr.Reserve(0.001, 1000)
		}()
	}
	wg.Wait()
	assert.InDelta(t, float64(n)*0.001, tr.Reserved(), 1e-6)
}

func TestResetClearsState(t *testing.T) {
	tr := New()
	tr.AddCost(5)
	_ = tr.Reserve(1, 100)
	tr.Reset()
	assert.Equal(t, 0.0, tr.Spent())
	assert.Equal(t, 0.0, tr.Reserved())
	assert.Equal(t, 0, tr.CallCount())
}
