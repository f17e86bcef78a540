package pipeline

import (
	"strings"

	"github.com/ChamsBouzaiene/scrutari/internal/skill"
)

// AgentDefaults is the preset bundle resolved from a stage's agent_type,
// per spec §3.
type AgentDefaults struct {
	Model       string
	MaxTokens   int
	Temperature float32
	ToolSteps   int
}

// sonnetClass and haikuClass name the model tiers the spec's agent-default
// table refers to; the catalog (internal/catalog) carries their pricing.
const (
	sonnetClass = "claude-sonnet-4-20250514"
	haikuClass  = "claude-3-5-haiku-20241022"
)

var defaultsByType = map[skill.AgentType]AgentDefaults{
	skill.AgentResearch: {Model: sonnetClass, MaxTokens: 8192, Temperature: 0.1, ToolSteps: 15},
	skill.AgentExplore:  {Model: haikuClass, MaxTokens: 2048, Temperature: 0, ToolSteps: 5},
	skill.AgentVerify:   {Model: sonnetClass, MaxTokens: 4096, Temperature: 0.1, ToolSteps: 10},
	skill.AgentDefault:  {Model: sonnetClass, MaxTokens: 4096, Temperature: 0.3, ToolSteps: 10},
}

// ResolveAgentType infers a stage's agent type when not set explicitly,
// per spec §3's inference rule: name contains "verify" -> verify; has
// tools AND output_format=json -> research; has tools AND no input_from ->
// explore; else default.
func ResolveAgentType(st skill.Stage) skill.AgentType {
	if st.AgentType != "" {
		return st.AgentType
	}
	if strings.Contains(strings.ToLower(st.Name), "verify") {
		return skill.AgentVerify
	}
	hasTools := len(st.Tools) > 0
	if hasTools && st.OutputFormat == skill.FormatJSON {
		return skill.AgentResearch
	}
	if hasTools && len(st.InputFrom) == 0 {
		return skill.AgentExplore
	}
	return skill.AgentDefault
}

// ResolveDefaults returns the agent-default bundle for a resolved agent
// type, falling back to AgentDefault for unknown values.
func ResolveDefaults(at skill.AgentType) AgentDefaults {
	if d, ok := defaultsByType[at]; ok {
		return d
	}
	return defaultsByType[skill.AgentDefault]
}
