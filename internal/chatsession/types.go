// Package chatsession holds the chat-mode data model (spec §3) and the
// single-owner mutator the Compaction Loop (C9) and callers share. Sessions
// are identified by session id alone — scrutari sessions aren't tied to a
// git repository, so there is no repo-scoping here.
package chatsession

import (
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
)

// Role mirrors llmcall.Role but a chat message may also be a bare "system"
// display entry never sent to a provider.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ThinkingSegment is one chain-of-thought span surfaced alongside a
// message's visible content.
type ThinkingSegment struct {
	ID      string
	Content string
}

// Message is one chat turn, per spec §3.
type Message struct {
	ID                  string
	Role                Role
	Content             string
	Timestamp           time.Time
	ThinkingSegments    []ThinkingSegment
	ToolCalls           []llmcall.ToolCall
	PipelineState       any // opaque pipeline.Event snapshot, rendered externally
	DryRunPreview       string
	IsCompactionSummary bool
	CompactedMessageIDs []string
}

// NewMessage builds a Message with a generated id and a Timestamp of
// time.Now().
func NewMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content, Timestamp: time.Now()}
}

// Session is a chat session's full mutable state, per spec §3.
type Session struct {
	ID                 string
	Title              string
	Messages           []Message
	CreatedAt          time.Time
	UpdatedAt          time.Time
	TotalCostUSD       float64
	CompactionBoundary int
	CompactionCount    int

	// ConfigOverrides holds project-level scrutari.toml values resolved at
	// session start (budget ceiling, default model, concurrency cap).
	ConfigOverrides map[string]any
}

// New creates an empty session with a generated id.
func New() *Session {
	now := time.Now()
	return &Session{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
}

const maxTitleLen = 80

// deriveTitle truncates the first user message to at most maxTitleLen
// characters, per spec §3's "title derived from first user message".
func deriveTitle(content string) string {
	r := []rune(content)
	if len(r) <= maxTitleLen {
		return string(r)
	}
	return string(r[:maxTitleLen])
}
