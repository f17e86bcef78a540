package llmcall

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateToolArgs checks call.Args against the JSON schema the matching
// ToolSchema declares, at the tool-call boundary where the model's
// generated arguments first become concrete data (spec §4.4's tool-call
// argument validation, §9's "validate at the boundary, don't statically
// type LLM-generated arguments"). A tool with no JSONSchema is unchecked.
func ValidateToolArgs(schemas []ToolSchema, call ToolCall) error {
	var schema string
	found := false
	for _, s := range schemas {
		if s.Name == call.Name {
			schema = s.JSONSchema
			found = true
			break
		}
	}
	if !found || schema == "" {
		return nil
	}

	argsJSON, err := json.Marshal(call.Args)
	if err != nil {
		return fmt.Errorf("tool %s: marshaling arguments: %w", call.Name, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(argsJSON),
	)
	if err != nil {
		return fmt.Errorf("tool %s: invalid schema: %w", call.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("tool %s: arguments do not match schema: %v", call.Name, msgs)
	}
	return nil
}
