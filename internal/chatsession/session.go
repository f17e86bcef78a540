package chatsession

import (
	"context"
	"sync"
)

// HookRunner lets the chat-mode front-end that owns a Mutator fire the
// pre_session/post_session lifecycle hooks (spec.md §4.10) around a
// session's lifetime, without this package depending on internal/hooks
// directly. A front-end that doesn't configure hooks simply never sets one.
type HookRunner interface {
	Run(ctx context.Context, phase string, vars map[string]any) error
}

// Mutator is the single-owner wrapper around a Session: every mutation
// takes an internal lock, since compaction (C9) now runs concurrently with
// message appends (spec §5).
type Mutator struct {
	mu      sync.Mutex
	session *Session
	saved   bool
	hooks   HookRunner
}

// NewMutator wraps an existing session (or a freshly created one) for
// serialized access.
func NewMutator(s *Session) *Mutator {
	return &Mutator{session: s}
}

// NewMutatorWithHooks wraps s like NewMutator and additionally fires
// pre_session through hooks before returning, per spec.md §4.10. A
// pre_session hook failure is fatal, same as pre_pipeline/pre_stage.
func NewMutatorWithHooks(ctx context.Context, s *Session, hooks HookRunner) (*Mutator, error) {
	m := &Mutator{session: s, hooks: hooks}
	if hooks != nil {
		if err := hooks.Run(ctx, "pre_session", map[string]any{"session_id": s.ID}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Close fires post_session, if hooks were configured via
// NewMutatorWithHooks. Safe to call on a Mutator with no hooks configured.
func (m *Mutator) Close(ctx context.Context) {
	if m.hooks == nil {
		return
	}
	m.mu.Lock()
	id := m.session.ID
	m.mu.Unlock()
	_ = m.hooks.Run(ctx, "post_session", map[string]any{"session_id": id})
}

// AddMessage appends msg, derives the title from the first user message
// until the session has been saved once, and advances UpdatedAt.
func (m *Mutator) AddMessage(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.Messages = append(m.session.Messages, msg)
	if !m.saved && m.session.Title == "" && msg.Role == RoleUser {
		m.session.Title = deriveTitle(msg.Content)
	}
	m.session.UpdatedAt = msg.Timestamp
}

// UpdateMessage replaces the message with the given id, if present.
func (m *Mutator) UpdateMessage(id string, fn func(*Message)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.session.Messages {
		if m.session.Messages[i].ID == id {
			fn(&m.session.Messages[i])
			return true
		}
	}
	return false
}

// MarkSaved freezes title derivation, per spec §3 ("until first save").
func (m *Mutator) MarkSaved() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = true
}

// Snapshot returns a shallow copy of the session's current messages and
// scalar fields, safe to read without holding the lock afterward.
func (m *Mutator) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]Message, len(m.session.Messages))
	copy(msgs, m.session.Messages)
	snap := *m.session
	snap.Messages = msgs
	return snap
}

// ReplaceRange atomically swaps messages[start:end] for replacement,
// used by the Compaction Loop to install a summary message in place.
// Returns false if start/end are out of range or out of order.
func (m *Mutator) ReplaceRange(start, end int, replacement []Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if start < 0 || end > len(m.session.Messages) || start > end {
		return false
	}
	next := make([]Message, 0, start+len(replacement)+(len(m.session.Messages)-end))
	next = append(next, m.session.Messages[:start]...)
	next = append(next, replacement...)
	next = append(next, m.session.Messages[end:]...)
	m.session.Messages = next
	return true
}

// SetCompactionBoundary advances the boundary and increments the count,
// per spec §4.9.
func (m *Mutator) SetCompactionBoundary(boundary int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.CompactionBoundary = boundary
	m.session.CompactionCount++
}

// AddCost accumulates total_cost_usd.
func (m *Mutator) AddCost(c float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.TotalCostUSD += c
}
