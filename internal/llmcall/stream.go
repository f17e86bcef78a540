package llmcall

import "context"

// StreamHandle is returned by CallStream: a lazy, finite, non-restartable
// sequence of text chunks plus a terminal future carrying the aggregated
// response, per SPEC_FULL.md §4.4. Done receives its value only after the
// provider has finished sending chunks, and the providers block once the
// Chunks buffer is full, so a caller must drain Chunks before (or while)
// waiting on Done, even when it only needs the final text.
type StreamHandle struct {
	Chunks <-chan TextChunk
	Done   <-chan StreamResult
}

// CallStream is the streaming counterpart to Call. It performs the same
// budget pre-check as Call but does not retry mid-stream: if the stream
// fails, the Done future carries the error and the caller decides whether
// to retry the whole call. The JSON-recovery retry does not apply to
// streaming calls (it operates on a complete response).
func (f *Facade) CallStream(ctx context.Context, p CallParams) (StreamHandle, error) {
	pricingModel := p.ModelPricing
	if pricingModel == "" {
		pricingModel = p.Model
	}

	if p.Budget != nil && p.Budget.Tracker != nil {
		if err := p.Budget.Tracker.CheckBudget(p.Budget.BudgetUSD); err != nil {
			return StreamHandle{}, err
		}
	}

	messages := withSystem(p.System, p.Messages)
	chunks, providerDone := f.client.Stream(ctx, p.Model, messages, p.Tools, p.Options)

	done := make(chan StreamResult, 1)
	go func() {
		defer close(done)
		res := <-providerDone
		if res.Err != nil {
			done <- res
			return
		}
		cost := f.catalog.Cost(pricingModel, res.Response.Usage.InputTokens, res.Response.Usage.OutputTokens)
		if p.Budget != nil && p.Budget.Tracker != nil {
			p.Budget.Tracker.AddCost(cost)
		}
		done <- res
	}()

	return StreamHandle{Chunks: chunks, Done: done}, nil
}
