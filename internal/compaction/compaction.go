// Package compaction implements C9, the Compaction Loop: token estimation
// with calibration, the auto-compact threshold check, and the compaction
// operation itself. Compaction narrows, per spec §4.9, to one primary
// LLM-summarization strategy with a deterministic truncation fallback for
// when the summarization call itself fails.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/scrutari/internal/chatsession"
	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
)

// ErrCompactionInProgress is returned when Compact is called while a prior
// compaction on the same Loop is still running, per spec §4.9's
// exactly-once guard.
var ErrCompactionInProgress = errors.New("compaction: already in progress")

// Config holds the Compaction Loop's tunables, per spec §4.9.
type Config struct {
	Enabled         bool
	AutoThreshold   float64 // default 0.85
	PreserveTurns   int     // default 4 (= 8 messages, alternating user/assistant)
	CompactionModel string
}

// DefaultConfig returns spec §4.9's stated defaults.
func DefaultConfig() Config {
	return Config{Enabled: true, AutoThreshold: 0.85, PreserveTurns: 4}
}

// Loop is the single stateful C9 instance a chat session owns: it tracks
// the EMA calibration ratio and the in-progress flag across calls.
type Loop struct {
	mu               sync.Mutex
	cfg              Config
	facade           *llmcall.Facade
	calibrationRatio float64
	isCompacting     bool
}

// New builds a Loop with calibration starting at 1.0 (no correction yet).
func New(facade *llmcall.Facade, cfg Config) *Loop {
	return &Loop{facade: facade, cfg: cfg, calibrationRatio: 1.0}
}

// EstimatedTokens applies the calibration ratio on top of the raw
// character-heuristic estimate across systemPromptTokens plus every
// message's content.
func (l *Loop) EstimatedTokens(messages []chatsession.Message, systemPromptTokens int) int {
	raw := systemPromptTokens
	for _, m := range messages {
		raw += EstimateTokens(m.Content) + 4 // per-message role/formatting overhead
	}

	l.mu.Lock()
	ratio := l.calibrationRatio
	l.mu.Unlock()

	return int(math.Round(float64(raw) * ratio))
}

// ShouldAutoCompact implements spec §4.9's threshold check:
// enabled ∧ estimated_tokens > auto_threshold · max_tokens.
func (l *Loop) ShouldAutoCompact(messages []chatsession.Message, systemPromptTokens, maxTokens int) bool {
	l.mu.Lock()
	enabled := l.cfg.Enabled
	threshold := l.cfg.AutoThreshold
	l.mu.Unlock()

	if !enabled {
		return false
	}
	estimated := l.EstimatedTokens(messages, systemPromptTokens)
	return float64(estimated) > threshold*float64(maxTokens)
}

// UpdateCalibration applies the EMA update r_new = 0.7*r_old + 0.3*(actual/estimated)
// after a real provider usage figure becomes available.
func (l *Loop) UpdateCalibration(actual, estimated int) {
	if estimated <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calibrationRatio = 0.7*l.calibrationRatio + 0.3*(float64(actual)/float64(estimated))
}

// preserveWindow returns the number of trailing messages kept untouched:
// 2 * PreserveTurns, matching strict user/assistant alternation.
func (l *Loop) preserveWindow() int {
	return 2 * l.cfg.PreserveTurns
}

// Compact selects the compactable range — messages at or after the current
// CompactionBoundary and outside the trailing preserve window — summarizes
// them with one LLM call, and installs the summary via ReplaceRange. It is
// a no-op (returns nil without calling the LLM) when the compactable range
// is empty, satisfying the idempotency requirement for
// messages.length < 2*preserve_turns. Concurrent calls on the same Loop
// return ErrCompactionInProgress.
func (l *Loop) Compact(ctx context.Context, mutator *chatsession.Mutator, userInstructions string) error {
	l.mu.Lock()
	if l.isCompacting {
		l.mu.Unlock()
		return ErrCompactionInProgress
	}
	l.isCompacting = true
	window := l.preserveWindow()
	model := l.cfg.CompactionModel
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.isCompacting = false
		l.mu.Unlock()
	}()

	snap := mutator.Snapshot()
	start := snap.CompactionBoundary
	end := len(snap.Messages) - window
	if end <= start {
		return nil
	}

	toCompact := snap.Messages[start:end]
	summaryText, err := l.summarize(ctx, toCompact, userInstructions, model)
	if err != nil {
		summaryText = fallbackSummary(toCompact)
	}

	ids := make([]string, len(toCompact))
	for i, m := range toCompact {
		ids[i] = m.ID
	}

	summary := chatsession.Message{
		ID:                  uuid.NewString(),
		Role:                chatsession.RoleAssistant,
		Content:             summaryText,
		IsCompactionSummary: true,
		CompactedMessageIDs: ids,
	}
	summary.Timestamp = snap.UpdatedAt

	if !mutator.ReplaceRange(start, end, []chatsession.Message{summary}) {
		return fmt.Errorf("compaction: range [%d:%d] no longer valid", start, end)
	}
	mutator.SetCompactionBoundary(start + 1)
	return nil
}

const compactionSystemPrompt = "You represent the memory of a financial analysis assistant. Summarize the following conversation turns to preserve context for the rest of the session. Focus on: analyses requested, key figures and conclusions produced, pipelines run, and unresolved questions. Be concise."

func (l *Loop) summarize(ctx context.Context, messages []chatsession.Message, userInstructions, model string) (string, error) {
	if l.facade == nil {
		return fallbackSummary(messages), nil
	}

	system := compactionSystemPrompt
	if userInstructions != "" {
		system += "\n\nAdditional instructions from the user: " + userInstructions
	}

	rendered := renderForSummary(messages)
	result, err := l.facade.Call(ctx, llmcall.CallParams{
		Model:  model,
		System: system,
		Messages: []llmcall.Message{
			{Role: llmcall.RoleUser, Content: "Summarize this conversation:\n\n" + rendered},
		},
		Options: llmcall.Options{MaxOutputTokens: 500, Temperature: 0.1},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

func renderForSummary(messages []chatsession.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
	}
	return b.String()
}

// fallbackSummary is the resilience fallback when the compaction-model call
// fails: a deterministic truncation of each compacted message rather than
// failing the whole compaction.
func fallbackSummary(messages []chatsession.Message) string {
	const perMessage = 120
	var b strings.Builder
	b.WriteString("(compacted without LLM summarization; truncated excerpts follow)\n")
	for _, m := range messages {
		content := m.Content
		r := []rune(content)
		if len(r) > perMessage {
			content = string(r[:perMessage]) + "…"
		}
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, content)
	}
	return b.String()
}
