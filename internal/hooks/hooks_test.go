package hooks

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteResolvesFlatAndNestedPaths(t *testing.T) {
	vars := map[string]any{
		"stage_name": "gather",
		"meta":       map[string]any{"ticker": "AAPL"},
	}
	got := substitute("echo {stage_name} {meta.ticker} {missing}", vars)
	assert.Equal(t, "echo gather AAPL {missing}", got)
}

func TestMatchesFilterExactOnly(t *testing.T) {
	h := Hook{Stage: "gather"}
	assert.True(t, matchesFilter(h, map[string]any{"stage_name": "gather"}))
	assert.False(t, matchesFilter(h, map[string]any{"stage_name": "summarize"}))
}

func TestRunExecutesMatchingPreHook(t *testing.T) {
	hs := []Hook{{Command: "exit 0", Phase: PhasePreStage, Stage: "gather"}}
	ex := NewExecutor(hs, zerolog.Nop(), nil)
	err := ex.Run(context.Background(), string(PhasePreStage), map[string]any{"stage_name": "gather"})
	assert.NoError(t, err)
}

func TestRunPreHookFailureAborts(t *testing.T) {
	hs := []Hook{{Command: "exit 7", Phase: PhasePrePipeline}}
	ex := NewExecutor(hs, zerolog.Nop(), nil)
	err := ex.Run(context.Background(), string(PhasePrePipeline), nil)
	require.Error(t, err)
	var hookErr *HookExecutionError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, 7, hookErr.ExitCode)
}

func TestRunPostHookFailureIsWarningOnly(t *testing.T) {
	var captured *HookExecutionError
	hs := []Hook{{Command: "exit 3", Phase: PhasePostStage}}
	ex := NewExecutor(hs, zerolog.Nop(), func(e *HookExecutionError) { captured = e })
	err := ex.Run(context.Background(), string(PhasePostStage), nil)
	assert.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, 3, captured.ExitCode)
}

func TestRunBackgroundHookNeverBlocksOrFails(t *testing.T) {
	hs := []Hook{{Command: "sleep 0.2 && exit 1", Phase: PhasePostPipeline, Background: true}}
	var captured *HookExecutionError
	done := make(chan struct{})
	ex := NewExecutor(hs, zerolog.Nop(), func(e *HookExecutionError) { captured = e; close(done) })

	start := time.Now()
	err := ex.Run(context.Background(), string(PhasePostPipeline), nil)
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background hook never reported failure")
	}
	require.NotNil(t, captured)
	ex.Wait()
}

func TestRunKillsOnTimeout(t *testing.T) {
	hs := []Hook{{Command: "sleep 5", Phase: PhasePreTool, TimeoutMS: 50}}
	ex := NewExecutor(hs, zerolog.Nop(), nil)
	err := ex.Run(context.Background(), string(PhasePreTool), nil)
	require.Error(t, err)
	var hookErr *HookExecutionError
	require.ErrorAs(t, err, &hookErr)
	assert.True(t, hookErr.TimedOut)
}
