package compaction

import "strings"

// EstimateTokens is the rough per-message token estimator C9 needs (spec
// §9's resolved Open Question): ~4 characters per token, plus a small
// whitespace correction. The calibration ratio (see Loop) corrects
// systematic under/over-estimation per model.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	charCount := len([]rune(text))
	whitespaceCount := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")
	estimated := (charCount / 4) + (whitespaceCount / 6)
	if estimated < 1 {
		return 1
	}
	return estimated
}
