// Package pipeline implements the Pipeline Engine (C6): it walks a loaded
// skill's DAG, executes stages with bounded per-level parallelism, streams
// events, enforces budget and cancellation, and recurses into
// sub-pipelines — spec §4.6.
package pipeline

import (
	"context"
	"time"

	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
	"github.com/ChamsBouzaiene/scrutari/internal/skill"
)

// EventKind enumerates every event the engine emits, per spec §4.6/§5.
type EventKind string

const (
	EventStageStart     EventKind = "stage:start"
	EventStageStream    EventKind = "stage:stream"
	EventStageToolStart EventKind = "stage:tool-start"
	EventStageToolEnd   EventKind = "stage:tool-end"
	EventStageComplete  EventKind = "stage:complete"
	EventStageError     EventKind = "stage:error"
	EventToolUnavail    EventKind = "tool:unavailable"
	EventPipelineDone   EventKind = "pipeline:complete"
	EventPipelineError  EventKind = "pipeline:error"
)

// Event is one item on the pipeline's event stream. Fields not relevant to
// Kind are left zero.
type Event struct {
	Kind EventKind

	Stage       string
	Model       string
	AgentType   skill.AgentType
	StageIndex  int
	TotalStages int

	Chunk string

	CallID   string
	ToolName string
	Success  bool
	DurationMS int64
	Error    string

	Required bool // for tool:unavailable

	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Content      string

	TotalCostUSD      float64
	TotalDurationMS   int64
	PrimaryOutput     string
	Outputs           map[string]string
	VerificationReport any

	FailedStage string
}

// StageState is the lifecycle of one stage: Pending -> Running ->
// {Done, Error}, no other transitions (spec §4.6).
type StageState string

const (
	StatePending StageState = "pending"
	StateRunning StageState = "running"
	StateDone    StageState = "done"
	StateError   StageState = "error"
)

// ToolResolver resolves a set of requested tool identifiers into concrete
// ToolSchemas plus an executor, dropping unavailable optional tools and
// reporting unavailable required ones. File/MCP transports for tools are
// external collaborators (spec §1); pipeline only consumes this interface.
type ToolResolver interface {
	Resolve(ctx context.Context, requested []string, required map[string]bool) (ResolvedTools, error)
}

// ResolvedTools is what a ToolResolver returns for one stage.
type ResolvedTools struct {
	Schemas          []llmcall.ToolSchema
	Executor         llmcall.ToolExecutor
	UnavailableOptional []string
}

// ToolUnavailable reports a required tool the resolver could not supply.
type ToolUnavailable struct {
	Tool     string
	Required bool
}

func (e *ToolUnavailable) Error() string {
	return "tool unavailable: " + e.Tool
}

// ToolExecutionError wraps a failed tool invocation. Per spec §7 it
// propagates to the model as a tool-call error result rather than failing
// the stage outright — streamStage relays it back as a RoleTool message,
// not as a fatal error, unless the model itself declines to continue.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return "tool execution failed: " + e.Tool + ": " + e.Cause.Error()
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// HookExecutor lets the pipeline fire lifecycle hooks without depending on
// internal/hooks directly; kept as a narrow interface so tests can stub it.
type HookExecutor interface {
	Run(ctx context.Context, phase string, vars map[string]any) error
}

// RunOptions configures one pipeline execution.
type RunOptions struct {
	Inputs         map[string]any
	ModelOverride  string
	BudgetUSD      float64
	Concurrency    int // per-level cap; 0 picks min(level size, runtime.NumCPU())
	ToolResolver   ToolResolver
	Hooks          HookExecutor
	VerifyFn       func(ctx context.Context, primaryOutput string, stageOutputs map[string]string) (any, error)
}

// Result is the terminal payload also carried on the final event.
type Result struct {
	TotalCostUSD       float64
	TotalDuration      time.Duration
	PrimaryOutput      string
	Outputs            map[string]string
	VerificationReport any
}
