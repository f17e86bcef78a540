package llmcall

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/scrutari/internal/catalog"
	"github.com/ChamsBouzaiene/scrutari/internal/retryengine"
)

// Facade is the C4 façade: one per provider client, shared across the
// pipeline run that uses it.
type Facade struct {
	client  Client
	catalog *catalog.Catalog
}

// New builds a Facade over client, pricing calls against cat (nil uses the
// process-wide default catalog).
func New(client Client, cat *catalog.Catalog) *Facade {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Facade{client: client, catalog: cat}
}

// jsonRecoveryPrompt is appended when the caller's JSONValidator rejects the
// first response, per spec §4.4.
const jsonRecoveryPrompt = "Your previous response was not valid JSON. Please respond again with ONLY a valid JSON value, no prose, no markdown fences."

// Call performs one façade invocation: budget pre-check, C3 retry, the
// optional multi-step tool loop, cost accounting, and the JSON-recovery
// retry. It never streams.
func (f *Facade) Call(ctx context.Context, p CallParams) (Result, error) {
	pricingModel := p.ModelPricing
	if pricingModel == "" {
		pricingModel = p.Model
	}

	retryCfg := retryengine.DefaultConfig()
	if p.RetryConfig != nil {
		retryCfg = *p.RetryConfig
	}

	messages := withSystem(p.System, p.Messages)

	result, err := f.runWithBudgetAndRetry(ctx, p, pricingModel, messages, retryCfg)
	if err != nil {
		return Result{}, err
	}

	if p.JSONValidator != nil {
		if verr := p.JSONValidator(result.Content); verr != nil {
			recoveryMessages := append(append([]Message{}, messages...),
				Message{Role: RoleAssistant, Content: result.Content},
				Message{Role: RoleUser, Content: jsonRecoveryPrompt},
			)
			noRetry := retryCfg
			noRetry.MaxRetries = 0
			recovered, rerr := f.runWithBudgetAndRetry(ctx, p, pricingModel, recoveryMessages, noRetry)
			if rerr == nil {
				recovered.Attempts += result.Attempts
				return recovered, nil
			}
			// Recovery failed: surface the original result, caller decides.
		}
	}

	return result, nil
}

// runWithBudgetAndRetry is the core single-pass invocation: tool loop +
// budget check + C3 retry wrapping one provider Chat call sequence.
func (f *Facade) runWithBudgetAndRetry(ctx context.Context, p CallParams, pricingModel string, messages []Message, retryCfg retryengine.Config) (Result, error) {
	if p.Budget != nil && p.Budget.Tracker != nil {
		if err := p.Budget.Tracker.CheckBudget(p.Budget.BudgetUSD); err != nil {
			return Result{}, err
		}
	}

	retryResult, err := retryengine.RetryWithPolicy(ctx, retryCfg, func(ctx context.Context) (toolLoopOutcome, error) {
		return f.runToolLoop(ctx, p, messages)
	}, nil)
	if err != nil {
		return Result{}, err
	}

	outcome := retryResult.Value
	cost := f.catalog.Cost(pricingModel, outcome.usage.InputTokens, outcome.usage.OutputTokens)

	if p.Budget != nil && p.Budget.Tracker != nil {
		p.Budget.Tracker.AddCost(cost)
		if err := p.Budget.Tracker.CheckBudget(p.Budget.BudgetUSD); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Content:   outcome.content,
		ToolCalls: outcome.toolCalls,
		Usage:     outcome.usage,
		CostUSD:   cost,
		Attempts:  retryResult.Attempts,
	}, nil
}

type toolLoopOutcome struct {
	content   string
	toolCalls []ToolCall
	usage     Usage
}

// runToolLoop invokes the provider, and when MaxToolSteps > 1 and tools are
// configured, keeps feeding tool results back until the model stops
// requesting tools or the step cap is hit. Usage is aggregated across
// every step per spec §4.4 step 2.
func (f *Facade) runToolLoop(ctx context.Context, p CallParams, messages []Message) (toolLoopOutcome, error) {
	var aggregate Usage
	current := messages
	maxSteps := p.MaxToolSteps
	if maxSteps < 1 {
		maxSteps = 1
	}

	var last Response
	for step := 0; step < maxSteps; step++ {
		resp, err := f.client.Chat(ctx, p.Model, current, p.Tools, p.Options)
		if err != nil {
			return toolLoopOutcome{}, err
		}
		aggregate.InputTokens += resp.Usage.InputTokens
		aggregate.OutputTokens += resp.Usage.OutputTokens
		last = resp

		if len(resp.ToolCalls) == 0 || p.ToolExecutor == nil || maxSteps == 1 {
			break
		}

		current = append(append([]Message{}, current...), Message{
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			var out string
			if verr := ValidateToolArgs(p.Tools, call); verr != nil {
				out = fmt.Sprintf("error: %v", verr)
			} else if res, terr := p.ToolExecutor(ctx, call); terr != nil {
				out = fmt.Sprintf("error: %v", terr)
			} else {
				out = res
			}
			current = append(current, Message{Role: RoleTool, Name: call.ID, Content: out})
		}
	}

	return toolLoopOutcome{content: last.Content, toolCalls: last.ToolCalls, usage: aggregate}, nil
}

func withSystem(system string, messages []Message) []Message {
	if system == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: system})
	out = append(out, messages...)
	return out
}
