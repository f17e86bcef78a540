package skill

import (
	"gopkg.in/yaml.v3"
)

// yamlSkill mirrors the on-disk pipeline skill shape (spec §6): top-level
// keys name, version?, description, author?, inputs?, tools_required?,
// tools_optional?, tools_config?, stages, output.
type yamlSkill struct {
	Name          string                    `yaml:"name"`
	Version       string                    `yaml:"version"`
	Description   string                    `yaml:"description"`
	Author        string                    `yaml:"author"`
	Inputs        []yamlInput               `yaml:"inputs"`
	ToolsRequired []string                  `yaml:"tools_required"`
	ToolsOptional []string                  `yaml:"tools_optional"`
	ToolsConfig   map[string]map[string]any `yaml:"tools_config"`
	Stages        []yamlStage               `yaml:"stages"`
	Output        yamlOutput                `yaml:"output"`
}

type yamlInput struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Default     any    `yaml:"default"`
	Description string `yaml:"description"`
}

type yamlStage struct {
	Name         string            `yaml:"name"`
	Prompt       string            `yaml:"prompt"`
	SubPipeline  string            `yaml:"sub_pipeline"`
	SubInputs    map[string]string `yaml:"sub_inputs"`
	Model        string            `yaml:"model"`
	Temperature  *float32          `yaml:"temperature"`
	Tools        []string          `yaml:"tools"`
	OutputFormat string            `yaml:"output_format"`
	MaxTokens    int               `yaml:"max_tokens"`
	InputFrom    []string          `yaml:"input_from"`
	AgentType    string            `yaml:"agent_type"`
}

type yamlOutput struct {
	Primary          string `yaml:"primary"`
	Format           string `yaml:"format"`
	SaveIntermediate bool   `yaml:"save_intermediate"`
	FilenameTemplate string `yaml:"filename_template"`
}

// ParsePipelineYAML parses the bytes of a .pipeline.yaml or .yaml file into
// a Skill, runs structural validation, and computes execution levels.
// File I/O is the caller's responsibility (spec treats it as an external
// collaborator); path is used only to annotate errors.
func ParsePipelineYAML(path string, data []byte) (*Skill, error) {
	var y yamlSkill
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, &SkillLoadError{Path: path, Err: err}
	}

	sk := &Skill{
		Name:          y.Name,
		Description:   y.Description,
		Version:       y.Version,
		ToolsRequired: y.ToolsRequired,
		ToolsOptional: y.ToolsOptional,
		ToolsConfig:   y.ToolsConfig,
		SourcePath:    path,
		Output: Output{
			Primary:          y.Output.Primary,
			Format:           OutputFormat(y.Output.Format),
			SaveIntermediate: y.Output.SaveIntermediate,
			FilenameTemplate: y.Output.FilenameTemplate,
		},
	}
	for _, in := range y.Inputs {
		sk.Inputs = append(sk.Inputs, Input{
			Name:        in.Name,
			Type:        InputType(in.Type),
			Required:    in.Required,
			Default:     in.Default,
			Description: in.Description,
		})
	}
	for _, st := range y.Stages {
		sk.Stages = append(sk.Stages, Stage{
			Name:         st.Name,
			Prompt:       st.Prompt,
			SubPipeline:  st.SubPipeline,
			SubInputs:    st.SubInputs,
			Model:        st.Model,
			Temperature:  st.Temperature,
			Tools:        st.Tools,
			OutputFormat: OutputFormat(st.OutputFormat),
			MaxTokens:    st.MaxTokens,
			InputFrom:    st.InputFrom,
			AgentType:    AgentType(st.AgentType),
		})
	}

	if err := Validate(sk); err != nil {
		return nil, err
	}
	levels, err := topologicalSort(sk)
	if err != nil {
		return nil, err
	}
	sk.ExecutionLevels = levels

	return sk, nil
}
