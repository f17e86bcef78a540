package pipeline

import (
	"encoding/json"
	"regexp"

	"github.com/ChamsBouzaiene/scrutari/internal/skill"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// renderPrompt substitutes {input_name} with a resolved pipeline input and
// {stage_name} with a prior stage's output, per spec §4.6 step 3. When the
// producing stage's declared output_format is json and the consuming
// stage's is not, the raw JSON text is re-serialized pretty-printed before
// insertion.
func renderPrompt(prompt string, inputs map[string]any, outputs map[string]string, stagesByName map[string]skill.Stage, consumerFormat skill.OutputFormat) string {
	return placeholderPattern.ReplaceAllStringFunc(prompt, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := inputs[name]; ok {
			return renderInputValue(v)
		}
		if out, ok := outputs[name]; ok {
			if st, ok := stagesByName[name]; ok && st.OutputFormat == skill.FormatJSON && consumerFormat != skill.FormatJSON {
				return prettyPrintIfJSON(out)
			}
			return out
		}
		return match
	})
}

func renderInputValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func prettyPrintIfJSON(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}
	return string(pretty)
}
