// Package hooks implements C10, the Hook Executor: user-configured shell
// commands run at pipeline/stage/tool lifecycle points, using a
// process-group/SIGKILL-on-timeout execution pattern (spec.md §4.10).
// Hooks are operator-authored rather than model-authored, so there is no
// command allowlist here.
package hooks

import (
	"strconv"
	"time"
)

// Phase is one of the eight lifecycle points spec.md §4.10 names.
type Phase string

const (
	PhasePrePipeline  Phase = "pre_pipeline"
	PhasePostPipeline Phase = "post_pipeline"
	PhasePreStage     Phase = "pre_stage"
	PhasePostStage    Phase = "post_stage"
	PhasePreTool      Phase = "pre_tool"
	PhasePostTool     Phase = "post_tool"
	PhasePreSession   Phase = "pre_session"
	PhasePostSession  Phase = "post_session"
)

const defaultTimeout = 30 * time.Second

// Hook is one user-configured shell command, per spec.md §4.10.
type Hook struct {
	Command     string
	Description string
	Phase       Phase
	Stage       string        // optional exact-match filter against vars["stage_name"]
	Tool        string        // optional exact-match filter against vars["tool_name"]
	TimeoutMS   int           // default 30000
	Background  bool          // fire-and-forget; never blocks, never fails the pipeline
}

func (h Hook) timeout() time.Duration {
	if h.TimeoutMS <= 0 {
		return defaultTimeout
	}
	return time.Duration(h.TimeoutMS) * time.Millisecond
}

// HookExecutionError reports a failed or timed-out hook, per spec §7.
// Pre-hook failures are fatal to the caller; post/background failures are
// reported via OnError only, never returned as fatal.
type HookExecutionError struct {
	Hook     string
	Phase    Phase
	ExitCode int
	TimedOut bool
	Stderr   string
}

func (e *HookExecutionError) Error() string {
	if e.TimedOut {
		return "hook " + e.Hook + " (" + string(e.Phase) + "): timed out"
	}
	return "hook " + e.Hook + " (" + string(e.Phase) + "): exit " + strconv.Itoa(e.ExitCode)
}
