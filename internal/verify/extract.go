package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
)

const extractionSystemPrompt = `You are a fact-extraction engine. Given an analysis report, return ONLY a JSON array of claims, no prose, no markdown fences. Each element: {"text": string, "category": "metric"|"event"|"comparison"|"projection"|"general", "value": number (metric only), "unit": string (metric only)}.`

// Extract calls the model to pull factual claims out of primaryOutput and
// returns them with generated "claim-N" ids, per spec §4.8 step 1. Parsing
// is defensive: code fences are stripped, a bracket-delimited array
// substring is located if the response isn't pure JSON, and malformed
// entries are dropped rather than failing the whole extraction.
func Extract(ctx context.Context, facade *llmcall.Facade, model, primaryOutput string) ([]Claim, error) {
	result, err := facade.Call(ctx, llmcall.CallParams{
		Model:  model,
		System: extractionSystemPrompt,
		Messages: []llmcall.Message{
			{Role: llmcall.RoleUser, Content: primaryOutput},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claim extraction call: %w", err)
	}

	raw := extractJSONArray(result.Content)
	var parsed []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("claim extraction: response was not a JSON array: %w", err)
	}

	claims := make([]Claim, 0, len(parsed))
	for i, elem := range parsed {
		var ec extractedClaim
		if err := json.Unmarshal(elem, &ec); err != nil {
			continue // malformed entry, dropped per spec §4.8
		}
		if strings.TrimSpace(ec.Text) == "" {
			continue
		}
		c := Claim{
			ID:       fmt.Sprintf("claim-%d", i+1),
			Text:     ec.Text,
			Category: normalizeCategory(ec.Category),
			Status:   StatusUnverified,
		}
		if ec.Value != nil {
			c.HasValue = true
			c.Value = *ec.Value * unitMultiplier(ec.Unit)
			c.Unit = ec.Unit
		}
		claims = append(claims, c)
	}
	return claims, nil
}

func normalizeCategory(s string) ClaimCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(CategoryMetric):
		return CategoryMetric
	case string(CategoryEvent):
		return CategoryEvent
	case string(CategoryComparison):
		return CategoryComparison
	case string(CategoryProjection):
		return CategoryProjection
	default:
		return CategoryGeneral
	}
}

// extractJSONArray strips ``` fences if present, then returns raw as-is if
// it already parses as JSON; otherwise it searches for the first
// '['...']' substring, which tolerates a model prefacing the array with
// prose despite instructions not to.
func extractJSONArray(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var probe []json.RawMessage
	if json.Unmarshal([]byte(s), &probe) == nil {
		return s
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
