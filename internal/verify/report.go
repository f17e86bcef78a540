package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/scrutari/internal/llmcall"
)

// Verify runs the full C8 pipeline over a pipeline run's primary output and
// its per-stage outputs: extraction, linking, summary, and an annotated
// report, per spec §4.8.
func Verify(ctx context.Context, facade *llmcall.Facade, model, primaryOutput string, stageOutputs map[string]string) (*Report, error) {
	claims, err := Extract(ctx, facade, model, primaryOutput)
	if err != nil {
		return nil, err
	}

	idx, err := buildStageIndex(stageOutputs)
	if err != nil {
		return nil, fmt.Errorf("verify: building stage index: %w", err)
	}
	defer idx.Close()

	for i := range claims {
		c := &claims[i]
		if c.Category == CategoryMetric && c.HasValue {
			linkMetric(stageOutputs, c)
		} else {
			linkKeyword(idx, stageOutputs, c)
		}
	}

	summary := summarize(claims)
	annotated := annotate(primaryOutput, claims)

	return &Report{Claims: claims, Summary: summary, Annotated: annotated}, nil
}

func summarize(claims []Claim) VerificationSummary {
	s := VerificationSummary{Total: len(claims)}
	var confidenceSum float64
	for _, c := range claims {
		switch c.Status {
		case StatusVerified:
			s.Verified++
		case StatusUnverified:
			s.Unverified++
		case StatusDisputed:
			s.Disputed++
		case StatusError:
			s.Errors++
		}
		confidenceSum += c.Confidence
	}
	if s.Total > 0 {
		s.OverallConfidence = confidenceSum / float64(s.Total)
	}
	return s
}

// annotate appends a footnote marker after each claim's first literal
// occurrence in primaryOutput, followed by a footnote list naming the
// claim's sources. Claims with no textual match are appended as unlinked
// footnotes at the end.
func annotate(primaryOutput string, claims []Claim) string {
	var body strings.Builder
	body.WriteString(primaryOutput)

	var footnotes strings.Builder
	footnotes.WriteString("\n\n---\n")
	for i, c := range claims {
		marker := fmt.Sprintf("[%d]", i+1)
		if idx := strings.Index(body.String(), c.Text); idx >= 0 {
			s := body.String()
			body.Reset()
			body.WriteString(s[:idx+len(c.Text)])
			body.WriteString(marker)
			body.WriteString(s[idx+len(c.Text):])
		}

		footnotes.WriteString(marker)
		footnotes.WriteString(" ")
		footnotes.WriteString(string(c.Status))
		if len(c.Sources) > 0 {
			var labels []string
			for _, src := range c.Sources {
				labels = append(labels, src.SourceID)
			}
			footnotes.WriteString(" (" + strings.Join(labels, ", ") + ")")
		}
		footnotes.WriteString("\n")
	}

	return body.String() + footnotes.String()
}
