package skill

import (
	"fmt"
)

// Validate enforces the structural invariants of spec §4.5: unique stage
// names, output.primary resolves, input_from resolves to a prior stage,
// stage tools are a subset of declared tools, tools_config keys are
// declared, input defaults match their declared type, and exactly one of
// prompt/sub_pipeline is set per stage.
func Validate(sk *Skill) error {
	var issues []string

	if sk.Name == "" {
		issues = append(issues, "skill name is required")
	}
	if len(sk.Stages) == 0 {
		issues = append(issues, "skill must declare at least one stage")
	}

	seen := make(map[string]bool, len(sk.Stages))
	position := make(map[string]int, len(sk.Stages))
	for i, st := range sk.Stages {
		if st.Name == "" {
			issues = append(issues, "stage with empty name")
			continue
		}
		if seen[st.Name] {
			issues = append(issues, fmt.Sprintf("duplicate stage name %q", st.Name))
		} else {
			position[st.Name] = i
		}
		seen[st.Name] = true

		hasPrompt := st.Prompt != ""
		hasSub := st.SubPipeline != ""
		switch {
		case hasPrompt && hasSub:
			issues = append(issues, fmt.Sprintf("stage %q sets both prompt and sub_pipeline", st.Name))
		case !hasPrompt && !hasSub:
			issues = append(issues, fmt.Sprintf("stage %q sets neither prompt nor sub_pipeline", st.Name))
		}
		if hasSub && (st.Model != "" || len(st.Tools) > 0) {
			issues = append(issues, fmt.Sprintf("sub_pipeline stage %q must not set model or tools", st.Name))
		}
	}

	declaredTools := make(map[string]bool, len(sk.ToolsRequired)+len(sk.ToolsOptional))
	for _, t := range sk.ToolsRequired {
		declaredTools[t] = true
	}
	for _, t := range sk.ToolsOptional {
		declaredTools[t] = true
	}
	declarationsExist := len(declaredTools) > 0

	for name := range sk.ToolsConfig {
		if declarationsExist && !declaredTools[name] {
			issues = append(issues, fmt.Sprintf("tools_config references undeclared tool %q", name))
		}
	}

	for i, st := range sk.Stages {
		if declarationsExist {
			for _, t := range st.Tools {
				if !declaredTools[t] {
					issues = append(issues, fmt.Sprintf("stage %q references undeclared tool %q", st.Name, t))
				}
			}
		}
		for _, dep := range st.InputFrom {
			if !seen[dep] {
				issues = append(issues, fmt.Sprintf("stage %q has input_from referencing unknown stage %q", st.Name, dep))
			} else if position[dep] >= i {
				issues = append(issues, fmt.Sprintf("stage %q has input_from referencing stage %q that is not declared before it", st.Name, dep))
			}
		}
	}

	if sk.Output.Primary != "" && !seen[sk.Output.Primary] {
		issues = append(issues, fmt.Sprintf("output.primary %q does not resolve to a stage", sk.Output.Primary))
	}

	for _, in := range sk.Inputs {
		if in.Default == nil {
			continue
		}
		if err := checkDefaultType(in); err != nil {
			issues = append(issues, err.Error())
		}
	}

	if len(issues) > 0 {
		return &SkillValidationError{SkillName: sk.Name, Issues: issues}
	}
	return nil
}

func checkDefaultType(in Input) error {
	switch in.Type {
	case InputString:
		if _, ok := in.Default.(string); !ok {
			return fmt.Errorf("input %q default is not a string", in.Name)
		}
	case InputStrings:
		switch v := in.Default.(type) {
		case []any:
			for _, e := range v {
				if _, ok := e.(string); !ok {
					return fmt.Errorf("input %q default contains a non-string element", in.Name)
				}
			}
		case []string:
			// already the right shape
		default:
			return fmt.Errorf("input %q default is not a string array", in.Name)
		}
	case InputNumber:
		switch in.Default.(type) {
		case int, int64, float32, float64:
		default:
			return fmt.Errorf("input %q default is not a number", in.Name)
		}
	case InputBoolean:
		if _, ok := in.Default.(bool); !ok {
			return fmt.Errorf("input %q default is not a boolean", in.Name)
		}
	default:
		return fmt.Errorf("input %q has unknown type %q", in.Name, in.Type)
	}
	return nil
}
