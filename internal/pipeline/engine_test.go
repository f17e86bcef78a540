package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/scrutari/internal/catalog"
	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
	"github.com/ChamsBouzaiene/scrutari/internal/retryengine"
	"github.com/ChamsBouzaiene/scrutari/internal/skill"
)

// scriptedStreamClient answers CallStream with a single text chunk then a
// scripted terminal result, optionally erroring on the first N calls per
// stage-invocation index (used to reproduce the retry-then-success
// scenario). It never needs Chat.
type scriptedStreamClient struct {
	calls int32
	// script returns the chunk text, response, and error for call index i.
	script func(i int) (string, llmcall.Response, error)
}

func (c *scriptedStreamClient) Chat(ctx context.Context, model string, messages []llmcall.Message, tools []llmcall.ToolSchema, opts llmcall.Options) (llmcall.Response, error) {
	panic("not used in this test")
}

func (c *scriptedStreamClient) Stream(ctx context.Context, model string, messages []llmcall.Message, tools []llmcall.ToolSchema, opts llmcall.Options) (<-chan llmcall.TextChunk, <-chan llmcall.StreamResult) {
	i := int(atomic.AddInt32(&c.calls, 1)) - 1
	chunkText, resp, err := c.script(i)

	chunks := make(chan llmcall.TextChunk, 1)
	done := make(chan llmcall.StreamResult, 1)
	go func() {
		defer close(chunks)
		defer close(done)
		if chunkText != "" {
			chunks <- llmcall.TextChunk{Text: chunkText}
		}
		done <- llmcall.StreamResult{Response: resp, Err: err}
	}()
	return chunks, done
}

func testCatalog() *catalog.Catalog {
	cat := catalog.New(nil)
	cat.Register("test-model", catalog.Entry{InputPerMillionUSD: 1, OutputPerMillionUSD: 1})
	return cat
}

func linearSkill(model string) *skill.Skill {
	return &skill.Skill{
		Name: "linear",
		Stages: []skill.Stage{
			{Name: "gather", Prompt: "go", Model: model},
			{Name: "summarize", Prompt: "summarize {gather}", Model: model, InputFrom: []string{"gather"}},
		},
		Output:          skill.Output{Primary: "summarize"},
		ExecutionLevels: [][]string{{"gather"}, {"summarize"}},
	}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// TestLinearPipelineCostAccounting reproduces spec §8 scenario 1: a
// two-stage linear pipeline's total cost equals the sum of each stage's
// actual usage-based cost.
func TestLinearPipelineCostAccounting(t *testing.T) {
	client := &scriptedStreamClient{
		script: func(i int) (string, llmcall.Response, error) {
			return "out", llmcall.Response{Content: "result", Usage: llmcall.Usage{InputTokens: 100, OutputTokens: 50}}, nil
		},
	}
	cat := testCatalog()
	facade := llmcall.New(client, cat)
	loader := skill.NewLoader()
	engine := New(loader, facade, cat)

	sk := linearSkill("test-model")
	events := engine.Run(context.Background(), sk, RunOptions{BudgetUSD: 10})
	all := drain(events)

	final := all[len(all)-1]
	require.Equal(t, EventPipelineDone, final.Kind)
	expectedPerStage := cat.Cost("test-model", 100, 50)
	assert.InDelta(t, expectedPerStage*2, final.TotalCostUSD, 1e-9)
	assert.Equal(t, "result", final.PrimaryOutput)
}

// TestDiamondPipelineParallelTiming reproduces spec §8 scenario 2: two
// independent stages in the same execution level run concurrently, so wall
// time approximates one stage's duration, not their sum.
func TestDiamondPipelineParallelTiming(t *testing.T) {
	client := &scriptedStreamClient{
		script: func(i int) (string, llmcall.Response, error) {
			time.Sleep(150 * time.Millisecond)
			return "out", llmcall.Response{Content: "r", Usage: llmcall.Usage{InputTokens: 1, OutputTokens: 1}}, nil
		},
	}
	cat := testCatalog()
	facade := llmcall.New(client, cat)
	loader := skill.NewLoader()
	engine := New(loader, facade, cat)

	sk := &skill.Skill{
		Name: "diamond",
		Stages: []skill.Stage{
			{Name: "A", Prompt: "go", Model: "test-model"},
			{Name: "B", Prompt: "go", Model: "test-model", InputFrom: []string{"A"}},
			{Name: "C", Prompt: "go", Model: "test-model", InputFrom: []string{"A"}},
			{Name: "D", Prompt: "go", Model: "test-model", InputFrom: []string{"B", "C"}},
		},
		Output:          skill.Output{Primary: "D"},
		ExecutionLevels: [][]string{{"A"}, {"B", "C"}, {"D"}},
	}

	start := time.Now()
	events := engine.Run(context.Background(), sk, RunOptions{BudgetUSD: 10})
	all := drain(events)
	elapsed := time.Since(start)

	final := all[len(all)-1]
	require.Equal(t, EventPipelineDone, final.Kind)
	// 3 sequential levels at ~150ms each ~= 450ms; if B/C ran serially it'd
	// be ~600ms. Generous ceiling keeps this resilient to scheduler jitter.
	assert.Less(t, elapsed, 550*time.Millisecond)
}

// TestBudgetBreachMidRun reproduces spec §8 scenario 3: the first stage runs
// and spends, then the second stage's estimated cost would push committed
// spend over budget, so the run fails with a budget error rather than
// invoking the model for that stage.
func TestBudgetBreachMidRun(t *testing.T) {
	client := &scriptedStreamClient{
		script: func(i int) (string, llmcall.Response, error) {
			return "out", llmcall.Response{Content: "r", Usage: llmcall.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}}, nil
		},
	}
	cat := testCatalog()
	facade := llmcall.New(client, cat)
	loader := skill.NewLoader()
	engine := New(loader, facade, cat)

	sk := linearSkill("test-model")
	sk.Stages[1].MaxTokens = 50_000_000 // forces a huge reservation estimate for the second stage

	events := engine.Run(context.Background(), sk, RunOptions{BudgetUSD: 0.015})
	all := drain(events)

	gatherDone := false
	for _, ev := range all {
		if ev.Kind == EventStageComplete && ev.Stage == "gather" {
			gatherDone = true
		}
	}
	assert.True(t, gatherDone)

	final := all[len(all)-1]
	assert.Equal(t, EventPipelineError, final.Kind)
	assert.NotEmpty(t, final.Error)
}

// TestStageRetriesThenSucceeds reproduces spec §8 scenario 4: two
// transient rate-limit errors followed by success yield attempts=3-worth
// of calls with cost reflecting only the successful attempt.
func TestStageRetriesThenSucceeds(t *testing.T) {
	client := &scriptedStreamClient{
		script: func(i int) (string, llmcall.Response, error) {
			if i < 2 {
				return "", llmcall.Response{}, retryengine.Wrap(errors.New("429"), retryengine.ClassRateLimit, 429, "")
			}
			return "final", llmcall.Response{Content: "final", Usage: llmcall.Usage{InputTokens: 10, OutputTokens: 5}}, nil
		},
	}
	cat := testCatalog()
	facade := llmcall.New(client, cat)
	loader := skill.NewLoader()
	engine := New(loader, facade, cat)

	sk := &skill.Skill{
		Name:            "retry",
		Stages:          []skill.Stage{{Name: "gather", Prompt: "go", Model: "test-model"}},
		Output:          skill.Output{Primary: "gather"},
		ExecutionLevels: [][]string{{"gather"}},
	}

	events := engine.Run(context.Background(), sk, RunOptions{BudgetUSD: 10})
	all := drain(events)

	final := all[len(all)-1]
	require.Equal(t, EventPipelineDone, final.Kind)
	assert.Equal(t, "final", final.PrimaryOutput)
	assert.Equal(t, int32(3), atomic.LoadInt32(&client.calls))
	expected := cat.Cost("test-model", 10, 5)
	assert.InDelta(t, expected, final.TotalCostUSD, 1e-9)
}

// TestSubPipelineRecursesAndPrefixesEvents reproduces spec §4.6's
// sub-pipeline note: a stage delegating to another skill shares the
// parent's tracker (cost aggregates onto the parent run) and namespaces its
// emitted stage events "parent/child".
func TestSubPipelineRecursesAndPrefixesEvents(t *testing.T) {
	client := &scriptedStreamClient{
		script: func(i int) (string, llmcall.Response, error) {
			return "out", llmcall.Response{Content: "child-result", Usage: llmcall.Usage{InputTokens: 10, OutputTokens: 10}}, nil
		},
	}
	cat := testCatalog()
	facade := llmcall.New(client, cat)
	loader := skill.NewLoader()
	engine := New(loader, facade, cat)

	child := &skill.Skill{
		Name:            "child",
		Stages:          []skill.Stage{{Name: "work", Prompt: "go", Model: "test-model"}},
		Output:          skill.Output{Primary: "work"},
		ExecutionLevels: [][]string{{"work"}},
	}
	loader.Register(child)

	parent := &skill.Skill{
		Name: "parent",
		Stages: []skill.Stage{
			{Name: "delegate", SubPipeline: "child", SubInputs: map[string]string{}},
		},
		Output:          skill.Output{Primary: "delegate"},
		ExecutionLevels: [][]string{{"delegate"}},
	}

	events := engine.Run(context.Background(), parent, RunOptions{BudgetUSD: 10})
	all := drain(events)

	final := all[len(all)-1]
	require.Equal(t, EventPipelineDone, final.Kind)
	assert.Equal(t, "child-result", final.PrimaryOutput)

	var sawPrefixed bool
	for _, ev := range all {
		if ev.Stage == "delegate/work" {
			sawPrefixed = true
		}
	}
	assert.True(t, sawPrefixed, "expected a prefixed child stage event")
}

// recordingHooks implements HookExecutor and records every phase/vars pair
// it's invoked with, so tests can assert on the exact shape the pipeline
// passes.
type recordingHooks struct {
	calls []struct {
		phase string
		vars  map[string]any
	}
}

func (h *recordingHooks) Run(ctx context.Context, phase string, vars map[string]any) error {
	h.calls = append(h.calls, struct {
		phase string
		vars  map[string]any
	}{phase, vars})
	return nil
}

type singleToolResolver struct{}

func (singleToolResolver) Resolve(ctx context.Context, requested []string, required map[string]bool) (ResolvedTools, error) {
	return ResolvedTools{
		Schemas: []llmcall.ToolSchema{{Name: "lookup_margin", JSONSchema: `{"type":"object"}`}},
		Executor: func(ctx context.Context, call llmcall.ToolCall) (string, error) {
			return `{"margin":0.4}`, nil
		},
	}, nil
}

// TestHooksFireWithStageAndToolFilters reproduces the pipeline's actual
// hook-invocation shape: pre_stage/post_stage and pre_tool/post_tool all
// pass flat stage_name/tool_name vars, so a Hook.Stage or Hook.Tool filter
// (which matchesFilter resolves against exactly those flat keys) actually
// matches real pipeline runs instead of only unfiltered hooks firing.
func TestHooksFireWithStageAndToolFilters(t *testing.T) {
	client := &scriptedStreamClient{
		script: func(i int) (string, llmcall.Response, error) {
			if i == 0 {
				return "", llmcall.Response{
					ToolCalls: []llmcall.ToolCall{{ID: "call1", Name: "lookup_margin", Args: map[string]any{}}},
				}, nil
			}
			return "done", llmcall.Response{Content: "done", Usage: llmcall.Usage{InputTokens: 5, OutputTokens: 5}}, nil
		},
	}
	cat := testCatalog()
	facade := llmcall.New(client, cat)
	loader := skill.NewLoader()
	engine := New(loader, facade, cat)

	sk := &skill.Skill{
		Name:            "toolcall",
		Stages:          []skill.Stage{{Name: "gather", Prompt: "go", Model: "test-model", Tools: []string{"lookup_margin"}}},
		Output:          skill.Output{Primary: "gather"},
		ExecutionLevels: [][]string{{"gather"}},
	}

	hooks := &recordingHooks{}
	events := engine.Run(context.Background(), sk, RunOptions{
		BudgetUSD:    10,
		ToolResolver: singleToolResolver{},
		Hooks:        hooks,
	})
	drain(events)

	phases := make([]string, len(hooks.calls))
	for i, c := range hooks.calls {
		phases[i] = c.phase
	}
	assert.Equal(t, []string{"pre_pipeline", "pre_stage", "pre_tool", "post_tool", "post_stage", "post_pipeline"}, phases)

	for _, c := range hooks.calls {
		if c.phase == "pre_stage" || c.phase == "post_stage" {
			assert.Equal(t, "gather", c.vars["stage_name"])
		}
		if c.phase == "pre_tool" || c.phase == "post_tool" {
			assert.Equal(t, "gather", c.vars["stage_name"])
			assert.Equal(t, "lookup_margin", c.vars["tool_name"])
		}
	}
}
