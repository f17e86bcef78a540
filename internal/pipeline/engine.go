package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ChamsBouzaiene/scrutari/internal/catalog"
	"github.com/ChamsBouzaiene/scrutari/internal/costtracker"
	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
	"github.com/ChamsBouzaiene/scrutari/internal/retryengine"
	"github.com/ChamsBouzaiene/scrutari/internal/skill"
)

// Engine is the Pipeline Engine (C6): it walks a skill's DAG and executes
// each stage through the LLM Call Façade, per spec §4.6.
type Engine struct {
	Loader  *skill.Loader
	Facade  *llmcall.Facade
	Catalog *catalog.Catalog
}

// New constructs an Engine.
func New(loader *skill.Loader, facade *llmcall.Facade, cat *catalog.Catalog) *Engine {
	return &Engine{Loader: loader, Facade: facade, Catalog: cat}
}

// run carries the state shared by every stage of one pipeline invocation
// (and its sub-pipeline recursions, which reuse the same tracker/events).
type run struct {
	sk          *skill.Skill
	opts        RunOptions
	tracker     *costtracker.Tracker
	events      chan Event
	start       time.Time
	eventPrefix string

	mu      sync.Mutex
	outputs map[string]string
}

func (r *run) stageEventName(name string) string {
	return r.eventPrefix + name
}

// Run executes sk's DAG to completion and returns the event stream; the
// final event is always pipeline:complete or pipeline:error. The channel
// is closed once the terminal event has been sent.
func (e *Engine) Run(ctx context.Context, sk *skill.Skill, opts RunOptions) <-chan Event {
	events := make(chan Event, 64)
	tracker := costtracker.New()
	go func() {
		defer close(events)
		e.runWithTracker(ctx, sk, opts, tracker, events)
	}()
	return events
}

func (e *Engine) runWithTracker(ctx context.Context, sk *skill.Skill, opts RunOptions, tracker *costtracker.Tracker, events chan Event) {
	start := time.Now()

	if opts.Hooks != nil {
		if err := opts.Hooks.Run(ctx, "pre_pipeline", map[string]any{"skill": sk.Name}); err != nil {
			e.emitPipelineError(tracker, events, start, err, "")
			return
		}
	}

	outputs, err := e.executeLevels(ctx, sk, opts, tracker, events, "")
	if err != nil {
		e.emitPipelineError(tracker, events, start, err, "")
		return
	}

	primary := outputs[sk.Output.Primary]

	var verificationReport any
	if opts.VerifyFn != nil {
		report, err := opts.VerifyFn(ctx, primary, outputs)
		if err == nil {
			verificationReport = report
		}
	}

	if opts.Hooks != nil {
		_ = opts.Hooks.Run(ctx, "post_pipeline", map[string]any{"skill": sk.Name})
	}

	events <- Event{
		Kind:               EventPipelineDone,
		TotalCostUSD:       tracker.Spent(),
		TotalDurationMS:    time.Since(start).Milliseconds(),
		PrimaryOutput:      primary,
		Outputs:            outputs,
		VerificationReport: verificationReport,
	}
}

// executeLevels runs one skill's ExecutionLevels to completion, sequential
// across levels and bounded-parallel within a level, and returns the
// stage-name -> output map. It is shared by the top-level run and by
// sub-pipeline recursion (spec §4.6's "Sub-pipelines" note): both reuse the
// same tracker and events channel so cost and cancellation are shared.
func (e *Engine) executeLevels(ctx context.Context, sk *skill.Skill, opts RunOptions, tracker *costtracker.Tracker, events chan Event, eventPrefix string) (map[string]string, error) {
	r := &run{
		sk:          sk,
		opts:        opts,
		tracker:     tracker,
		events:      events,
		start:       time.Now(),
		eventPrefix: eventPrefix,
		outputs:     make(map[string]string),
	}

	stagesByName := make(map[string]skill.Stage, len(sk.Stages))
	for _, st := range sk.Stages {
		stagesByName[st.Name] = st
	}

	totalStages := len(sk.Stages)
	stageIndex := 0

	for _, level := range sk.ExecutionLevels {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		concurrency := opts.Concurrency
		if concurrency <= 0 {
			concurrency = min(len(level), runtime.NumCPU())
		}
		if concurrency < 1 {
			concurrency = 1
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for _, name := range level {
			stageIndex++
			st := stagesByName[name]
			idx := stageIndex

			g.Go(func() error {
				return e.runStage(gctx, r, st, idx, totalStages, stagesByName)
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return copyOutputs(r.outputs), nil
}

func (e *Engine) emitPipelineError(tracker *costtracker.Tracker, events chan Event, start time.Time, err error, failedStage string) {
	events <- Event{
		Kind:            EventPipelineError,
		Error:           err.Error(),
		FailedStage:     failedStage,
		TotalCostUSD:    tracker.Spent(),
		TotalDurationMS: time.Since(start).Milliseconds(),
	}
}

func copyOutputs(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (e *Engine) runStage(ctx context.Context, r *run, st skill.Stage, stageIndex, totalStages int, stagesByName map[string]skill.Stage) error {
	if st.IsSubPipeline() {
		return e.runSubPipelineStage(ctx, r, st, stageIndex, totalStages)
	}

	at := ResolveAgentType(st)
	defaults := ResolveDefaults(at)

	model := defaults.Model
	if r.opts.ModelOverride != "" {
		model = r.opts.ModelOverride
	} else if st.Model != "" {
		model = st.Model
	}

	maxTokens := defaults.MaxTokens
	if st.MaxTokens > 0 {
		maxTokens = st.MaxTokens
	}
	temperature := defaults.Temperature
	if st.Temperature != nil {
		temperature = *st.Temperature
	}

	prompt := renderPrompt(st.Prompt, r.opts.Inputs, snapshotOutputs(r), stagesByName, st.OutputFormat)

	var schemas []llmcall.ToolSchema
	var executor llmcall.ToolExecutor
	if r.opts.ToolResolver != nil {
		requested := st.Tools
		required := make(map[string]bool, len(requested))
		for _, t := range r.sk.ToolsRequired {
			required[t] = true
		}
		resolved, err := r.opts.ToolResolver.Resolve(ctx, requested, required)
		if err != nil {
			var tu *ToolUnavailable
			if errors.As(err, &tu) && !tu.Required {
				r.events <- Event{Kind: EventToolUnavail, Stage: r.stageEventName(st.Name), ToolName: tu.Tool, Required: false}
			} else {
				r.events <- Event{Kind: EventStageError, Stage: r.stageEventName(st.Name), Error: err.Error()}
				return err
			}
		} else {
			schemas = resolved.Schemas
			executor = resolved.Executor
			for _, t := range resolved.UnavailableOptional {
				r.events <- Event{Kind: EventToolUnavail, Stage: r.stageEventName(st.Name), ToolName: t, Required: false}
			}
		}
	}

	estOut := maxTokens
	estIn := 2 * estOut
	estCost := e.Catalog.Cost(model, estIn, estOut)

	if err := r.tracker.Reserve(estCost, r.opts.BudgetUSD); err != nil {
		r.events <- Event{Kind: EventStageError, Stage: r.stageEventName(st.Name), Error: err.Error()}
		return err
	}

	if r.opts.Hooks != nil {
		if err := r.opts.Hooks.Run(ctx, "pre_stage", map[string]any{"stage_name": st.Name}); err != nil {
			r.tracker.ReleaseReservation(estCost)
			r.events <- Event{Kind: EventStageError, Stage: r.stageEventName(st.Name), Error: err.Error()}
			return err
		}
	}

	r.events <- Event{Kind: EventStageStart, Stage: r.stageEventName(st.Name), Model: model, AgentType: at, StageIndex: stageIndex, TotalStages: totalStages}

	stageStart := time.Now()
	retryCfg := retryengine.DefaultConfig()

	content, usage, err := e.streamStage(ctx, r, st, model, prompt, temperature, maxTokens, schemas, executor, defaults.ToolSteps, &retryCfg)
	if err != nil {
		r.tracker.ReleaseReservation(estCost)
		r.events <- Event{Kind: EventStageError, Stage: r.stageEventName(st.Name), Error: err.Error()}
		return err
	}

	// streamStage's underlying CallStream already recorded the actual cost
	// of each step via its own Budget.Tracker.AddCost; only the reservation
	// needs releasing here, or the spend would be double-counted.
	actualCost := e.Catalog.Cost(model, usage.InputTokens, usage.OutputTokens)
	r.tracker.ReleaseReservation(estCost)

	r.mu.Lock()
	r.outputs[st.Name] = content
	r.mu.Unlock()

	if r.opts.Hooks != nil {
		_ = r.opts.Hooks.Run(ctx, "post_stage", map[string]any{"stage_name": st.Name})
	}

	r.events <- Event{
		Kind:         EventStageComplete,
		Stage:        r.stageEventName(st.Name),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      actualCost,
		Model:        model,
		DurationMS:   time.Since(stageStart).Milliseconds(),
		Content:      content,
	}
	return nil
}

// runSubPipelineStage resolves a sub_pipeline stage's sub_inputs against the
// parent's inputs/outputs, then recurses into executeLevels for the named
// sub-skill, reusing the parent's tracker and events channel so cost
// aggregates onto the parent run and cancellation propagates. Emitted event
// stage names are namespaced "parent/child" per spec §4.6.
func (e *Engine) runSubPipelineStage(ctx context.Context, r *run, st skill.Stage, stageIndex, totalStages int) error {
	sub, ok := e.Loader.Pipeline(st.SubPipeline)
	if !ok {
		err := fmt.Errorf("sub_pipeline %q not loaded", st.SubPipeline)
		r.events <- Event{Kind: EventStageError, Stage: r.stageEventName(st.Name), Error: err.Error()}
		return err
	}

	parentOutputs := snapshotOutputs(r)
	subInputs := make(map[string]any, len(st.SubInputs))
	for subName, ref := range st.SubInputs {
		subInputs[subName] = resolveSubInputRef(ref, r.opts.Inputs, parentOutputs)
	}

	subOpts := RunOptions{
		Inputs:        subInputs,
		ModelOverride: r.opts.ModelOverride,
		BudgetUSD:     r.opts.BudgetUSD,
		Concurrency:   r.opts.Concurrency,
		ToolResolver:  r.opts.ToolResolver,
		Hooks:         r.opts.Hooks,
	}

	r.events <- Event{Kind: EventStageStart, Stage: r.stageEventName(st.Name), StageIndex: stageIndex, TotalStages: totalStages}

	prefix := r.stageEventName(st.Name) + "/"
	stageStart := time.Now()
	subOutputs, err := e.executeLevels(ctx, sub, subOpts, r.tracker, r.events, prefix)
	if err != nil {
		r.events <- Event{Kind: EventStageError, Stage: r.stageEventName(st.Name), Error: err.Error()}
		return err
	}

	primary := subOutputs[sub.Output.Primary]

	r.mu.Lock()
	r.outputs[st.Name] = primary
	r.mu.Unlock()

	r.events <- Event{
		Kind:       EventStageComplete,
		Stage:      r.stageEventName(st.Name),
		Model:      "",
		DurationMS: time.Since(stageStart).Milliseconds(),
		Content:    primary,
	}
	return nil
}

// resolveSubInputRef resolves a sub_inputs value, which refers to either a
// parent input ("input:name") or a parent stage's output ("stage:name").
// An unprefixed value is treated as a literal.
func resolveSubInputRef(ref string, inputs map[string]any, outputs map[string]string) any {
	switch {
	case len(ref) > 6 && ref[:6] == "input:":
		name := ref[6:]
		if v, ok := inputs[name]; ok {
			return v
		}
		return ""
	case len(ref) > 6 && ref[:6] == "stage:":
		name := ref[6:]
		return outputs[name]
	default:
		return ref
	}
}

func snapshotOutputs(r *run) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyOutputs(r.outputs)
}

// streamStage drives one stage's LLM interaction via streaming, relaying
// text chunks and executing tool calls in a loop bounded by maxToolSteps
// (spec §4.6 step 7). Each step is wrapped in RetryWithPolicy:
// C4's streaming path itself never retries (spec §4.4), so retry-then-
// success behavior (spec §8 scenario 4) has to live at this level.
func (e *Engine) streamStage(ctx context.Context, r *run, st skill.Stage, model, prompt string, temperature float32, maxTokens int, schemas []llmcall.ToolSchema, executor llmcall.ToolExecutor, maxToolSteps int, retryCfg *retryengine.Config) (string, llmcall.Usage, error) {
	messages := []llmcall.Message{{Role: llmcall.RoleUser, Content: prompt}}
	var totalUsage llmcall.Usage

	for step := 0; ; step++ {
		stepMessages := messages
		attempt := func(callCtx context.Context) (llmcall.Response, error) {
			handle, err := e.Facade.CallStream(callCtx, llmcall.CallParams{
				Model:    model,
				Messages: stepMessages,
				Tools:    schemas,
				Options:  llmcall.Options{Temperature: temperature, MaxOutputTokens: maxTokens},
				Budget:   &llmcall.BudgetScope{BudgetUSD: r.opts.BudgetUSD, Tracker: r.tracker},
			})
			if err != nil {
				return llmcall.Response{}, err
			}
			for chunk := range handle.Chunks {
				if chunk.Text != "" {
					r.events <- Event{Kind: EventStageStream, Stage: r.stageEventName(st.Name), Chunk: chunk.Text}
				}
			}
			res := <-handle.Done
			if res.Err != nil {
				return llmcall.Response{}, res.Err
			}
			return res.Response, nil
		}

		result, err := retryengine.RetryWithPolicy(ctx, *retryCfg, attempt, nil)
		if err != nil {
			return "", totalUsage, err
		}
		resp := result.Value

		totalUsage.InputTokens += resp.Usage.InputTokens
		totalUsage.OutputTokens += resp.Usage.OutputTokens

		if len(resp.ToolCalls) == 0 || step+1 >= maxToolSteps || executor == nil {
			return resp.Content, totalUsage, nil
		}

		messages = append(messages, llmcall.Message{Role: llmcall.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			r.events <- Event{Kind: EventStageToolStart, Stage: r.stageEventName(st.Name), CallID: call.ID, ToolName: call.Name}
			toolVars := map[string]any{"stage_name": st.Name, "tool_name": call.Name}

			if r.opts.Hooks != nil {
				if err := r.opts.Hooks.Run(ctx, "pre_tool", toolVars); err != nil {
					return "", totalUsage, err
				}
			}

			toolStart := time.Now()
			var result string
			toolErr := llmcall.ValidateToolArgs(schemas, call)
			if toolErr == nil {
				result, toolErr = executor(ctx, call)
			}
			success := toolErr == nil
			errMsg := ""
			if toolErr != nil {
				wrapped := &ToolExecutionError{Tool: call.Name, Cause: toolErr}
				errMsg = wrapped.Error()
				result = fmt.Sprintf("error: %s", errMsg)
			}
			if r.opts.Hooks != nil {
				_ = r.opts.Hooks.Run(ctx, "post_tool", toolVars)
			}
			r.events <- Event{Kind: EventStageToolEnd, Stage: r.stageEventName(st.Name), CallID: call.ID, ToolName: call.Name, Success: success, DurationMS: time.Since(toolStart).Milliseconds(), Error: errMsg}
			messages = append(messages, llmcall.Message{Role: llmcall.RoleTool, Name: call.ID, Content: result})
		}
	}
}
