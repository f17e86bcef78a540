//go:build !windows
// +build !windows

package hooks

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// OnError is invoked for a post-hook or background-hook failure, since
// those never abort the pipeline per spec §4.10.
type OnError func(err *HookExecutionError)

// Executor runs every registered hook matching a lifecycle phase, honoring
// the stage/tool filters, fire-and-forget background hooks, and the
// pre-hook-aborts / post-hook-warns split. It implements
// pipeline.HookExecutor so it slots directly into pipeline.RunOptions.Hooks.
type Executor struct {
	hooks   []Hook
	log     zerolog.Logger
	onError OnError

	running sync.WaitGroup // tracks in-flight background hooks for graceful shutdown
}

// NewExecutor builds an Executor over a fixed hook list (loaded once at
// start-up, per spec §7's "global hook-manager singleton" note).
func NewExecutor(hs []Hook, log zerolog.Logger, onError OnError) *Executor {
	if onError == nil {
		onError = func(*HookExecutionError) {}
	}
	return &Executor{hooks: hs, log: log, onError: onError}
}

// Run fires every hook registered for phase whose stage/tool filter
// matches vars. Pre-lifecycle-point hooks (pre_pipeline, pre_stage,
// pre_tool, pre_session) return the first fatal error. Post-lifecycle and
// background hooks never return an error; failures go to OnError.
func (e *Executor) Run(ctx context.Context, phase string, vars map[string]any) error {
	p := Phase(phase)
	isPre := strings.HasPrefix(phase, "pre_")

	for _, h := range e.hooks {
		if h.Phase != p || !matchesFilter(h, vars) {
			continue
		}

		if h.Background {
			e.running.Add(1)
			go func(h Hook) {
				defer e.running.Done()
				if err := e.runOne(context.Background(), h, vars); err != nil {
					e.onError(err)
				}
			}(h)
			continue
		}

		err := e.runOne(ctx, h, vars)
		if err == nil {
			continue
		}
		if isPre {
			return err
		}
		e.onError(err)
	}
	return nil
}

// Wait blocks until every in-flight background hook has returned, for
// graceful process shutdown.
func (e *Executor) Wait() {
	e.running.Wait()
}

// runOne executes a single hook's command through the shell, killing its
// whole process group with SIGKILL on timeout/cancellation so no
// grandchild process outlives the hook.
func (e *Executor) runOne(ctx context.Context, h Hook, vars map[string]any) *HookExecutionError {
	cctx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()

	command := substitute(h.Command, vars)
	cmd := exec.Command("sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &HookExecutionError{Hook: h.Command, Phase: h.Phase, ExitCode: -1, Stderr: err.Error()}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	timedOut := errors.Is(cctx.Err(), context.DeadlineExceeded)
	if waitErr == nil && !timedOut {
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &HookExecutionError{Hook: h.Command, Phase: h.Phase, ExitCode: exitCode, TimedOut: timedOut, Stderr: stderr.String()}
}
