package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/scrutari/internal/chatsession"
)

// about500Tokens is ~2000 characters, matching spec §8 scenario 6's
// "~500 tokens each" message size under the 4-chars-per-token heuristic.
var about500Tokens = strings.Repeat("analysis request and response text padded to size. ", 40)

func turnsOf(n int) []chatsession.Message {
	msgs := make([]chatsession.Message, 0, n*2)
	for i := 0; i < n; i++ {
		msgs = append(msgs,
			chatsession.NewMessage(chatsession.RoleUser, about500Tokens),
			chatsession.NewMessage(chatsession.RoleAssistant, about500Tokens),
		)
	}
	return msgs
}

// TestShouldAutoCompactTriggersNearThreshold reproduces spec §8 scenario 6's
// shape: enough turns that the estimated token count crosses 0.85*max_tokens.
func TestShouldAutoCompactTriggersNearThreshold(t *testing.T) {
	loop := New(nil, DefaultConfig())
	messages := turnsOf(7) // 14 messages, ~500 tokens each per the scenario

	should := loop.ShouldAutoCompact(messages, 1000, 8192)
	assert.True(t, should)
}

func TestShouldAutoCompactFalseWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	loop := New(nil, cfg)
	messages := turnsOf(20)
	assert.False(t, loop.ShouldAutoCompact(messages, 1000, 8192))
}

func TestUpdateCalibrationAppliesEMA(t *testing.T) {
	loop := New(nil, DefaultConfig())
	loop.UpdateCalibration(150, 100) // ratio: 0.7*1.0 + 0.3*1.5 = 1.15
	assert.InDelta(t, 1.15, loop.calibrationRatio, 1e-9)
}

// TestCompactLeavesPreserveWindowIntact reproduces spec §8 scenario 6:
// 20 messages, preserve_turns=4 (8 messages) leaves exactly one summary
// message plus the 8 preserved messages.
func TestCompactLeavesPreserveWindowIntact(t *testing.T) {
	session := chatsession.New()
	session.Messages = turnsOf(10) // 20 messages
	mutator := chatsession.NewMutator(session)

	loop := New(nil, DefaultConfig()) // nil facade forces the fallback summarizer
	err := loop.Compact(context.Background(), mutator, "")
	require.NoError(t, err)

	snap := mutator.Snapshot()
	require.Len(t, snap.Messages, 9) // 1 summary + 8 preserved
	assert.True(t, snap.Messages[0].IsCompactionSummary)
	assert.Len(t, snap.Messages[0].CompactedMessageIDs, 12)
	assert.Equal(t, 1, snap.CompactionBoundary)
	assert.Equal(t, 1, snap.CompactionCount)
}

// TestCompactIsIdempotentWhenBelowPreserveWindow reproduces the stated
// invariant: fewer than 2*preserve_turns messages means no-op.
func TestCompactIsIdempotentWhenBelowPreserveWindow(t *testing.T) {
	session := chatsession.New()
	session.Messages = turnsOf(3) // 6 messages < 8
	mutator := chatsession.NewMutator(session)

	loop := New(nil, DefaultConfig())
	err := loop.Compact(context.Background(), mutator, "")
	require.NoError(t, err)

	snap := mutator.Snapshot()
	assert.Len(t, snap.Messages, 6)
	assert.Equal(t, 0, snap.CompactionCount)
}

func TestCompactRejectsConcurrentCalls(t *testing.T) {
	loop := New(nil, DefaultConfig())
	loop.isCompacting = true
	session := chatsession.New()
	session.Messages = turnsOf(10)
	mutator := chatsession.NewMutator(session)

	err := loop.Compact(context.Background(), mutator, "")
	assert.ErrorIs(t, err, ErrCompactionInProgress)
}
