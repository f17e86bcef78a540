// Package skill loads and validates pipeline skills (YAML) and agent
// skills (Markdown+frontmatter), and computes the DAG execution order the
// Pipeline Engine walks — spec §3, §4.5.
package skill

import "fmt"

// InputType is the declared type of one skill input.
type InputType string

const (
	InputString   InputType = "string"
	InputStrings  InputType = "string[]"
	InputNumber   InputType = "number"
	InputBoolean  InputType = "boolean"
)

// AgentType selects a preset bundle of model/token/temperature/tool-step
// defaults, either declared explicitly on a stage or inferred.
type AgentType string

const (
	AgentResearch AgentType = "research"
	AgentExplore  AgentType = "explore"
	AgentVerify   AgentType = "verify"
	AgentDefault  AgentType = "default"
)

// OutputFormat is a stage's or skill's declared output shape.
type OutputFormat string

const (
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
	FormatText     OutputFormat = "text"
	FormatDocx     OutputFormat = "docx"
)

// Input is one declared pipeline input.
type Input struct {
	Name        string
	Type        InputType
	Required    bool
	Default     any
	Description string
}

// Stage is one unit of work in a pipeline: either a prompt or a
// sub-pipeline reference, never both.
type Stage struct {
	Name         string
	Prompt       string
	SubPipeline  string
	SubInputs    map[string]string // sub-input name -> "input:<name>" or "stage:<name>"
	Model        string
	Temperature  *float32
	Tools        []string
	OutputFormat OutputFormat
	MaxTokens    int
	InputFrom    []string
	AgentType    AgentType
}

// IsSubPipeline reports whether the stage delegates to another skill.
func (s Stage) IsSubPipeline() bool { return s.SubPipeline != "" }

// Output describes a skill's final artifact.
type Output struct {
	Primary            string
	Format             OutputFormat
	SaveIntermediate   bool
	FilenameTemplate   string
}

// Skill is a named, validated, immutable recipe of ordered stages.
type Skill struct {
	Name          string
	Description   string
	Version       string
	Inputs        []Input
	ToolsRequired []string
	ToolsOptional []string
	ToolsConfig   map[string]map[string]any
	Stages        []Stage
	Output        Output

	// ExecutionLevels is computed at load time by topologicalSort: level i
	// holds the stages whose input_from is fully satisfied by levels < i.
	ExecutionLevels [][]string

	// SourcePath is the file this skill was parsed from, used only for
	// error messages.
	SourcePath string
}

// StageByName returns the stage with the given name, or false if absent.
func (sk *Skill) StageByName(name string) (Stage, bool) {
	for _, s := range sk.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// AgentSkill is a Markdown+frontmatter skill: free-form instructions for
// an agentic stage rather than a structured pipeline.
type AgentSkill struct {
	Name          string
	Description   string
	License       string
	Compatibility string
	Metadata      map[string]any
	AllowedTools  []string
	Body          string
	Dir           string // directory the skill was loaded from, for resource resolution

	// Pipeline is the optional co-located *.pipeline.yaml, if present.
	Pipeline *Skill
}

// SkillLoadError wraps a parse failure with the offending file path.
type SkillLoadError struct {
	Path string
	Err  error
}

func (e *SkillLoadError) Error() string {
	return fmt.Sprintf("load skill %s: %v", e.Path, e.Err)
}
func (e *SkillLoadError) Unwrap() error { return e.Err }

// SkillValidationError collects every structural issue found in one skill.
type SkillValidationError struct {
	SkillName string
	Issues    []string
}

func (e *SkillValidationError) Error() string {
	return fmt.Sprintf("skill %q failed validation: %v", e.SkillName, e.Issues)
}

// SkillCycleError reports a cycle detected in the input_from DAG.
type SkillCycleError struct {
	CyclePath []string
}

func (e *SkillCycleError) Error() string {
	return fmt.Sprintf("cycle detected in stage dependencies: %v", e.CyclePath)
}

// ResourceError reports a resource path that escapes an agent skill's
// allowed resource directories.
type ResourceError struct {
	Path   string
	Reason string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %q rejected: %s", e.Path, e.Reason)
}
