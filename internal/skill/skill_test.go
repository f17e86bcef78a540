package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamondSkill() *Skill {
	return &Skill{
		Name: "diamond",
		Stages: []Stage{
			{Name: "A", Prompt: "go"},
			{Name: "B", Prompt: "go", InputFrom: []string{"A"}},
			{Name: "C", Prompt: "go", InputFrom: []string{"A"}},
			{Name: "D", Prompt: "go", InputFrom: []string{"B", "C"}},
		},
		Output: Output{Primary: "D"},
	}
}

func TestTopologicalSortDiamond(t *testing.T) {
	sk := diamondSkill()
	levels, err := topologicalSort(sk)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.ElementsMatch(t, []string{"A"}, levels[0])
	assert.ElementsMatch(t, []string{"B", "C"}, levels[1])
	assert.ElementsMatch(t, []string{"D"}, levels[2])
}

// TestTopologicalSortInvariant reproduces spec §8's universal invariant:
// union of levels equals the stage set, and every stage's input_from is
// drawn only from strictly earlier levels.
func TestTopologicalSortInvariant(t *testing.T) {
	sk := diamondSkill()
	levels, err := topologicalSort(sk)
	require.NoError(t, err)

	levelOf := map[string]int{}
	union := map[string]bool{}
	for i, lvl := range levels {
		for _, name := range lvl {
			levelOf[name] = i
			union[name] = true
		}
	}
	for _, st := range sk.Stages {
		assert.True(t, union[st.Name], "stage %s missing from any level", st.Name)
		for _, dep := range st.InputFrom {
			assert.Less(t, levelOf[dep], levelOf[st.Name], "dep %s must be in an earlier level than %s", dep, st.Name)
		}
	}
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	sk := &Skill{
		Name: "cyclic",
		Stages: []Stage{
			{Name: "A", Prompt: "go", InputFrom: []string{"B"}},
			{Name: "B", Prompt: "go", InputFrom: []string{"A"}},
		},
	}
	_, err := topologicalSort(sk)
	require.Error(t, err)
	var cycleErr *SkillCycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"A", "B"}, cycleErr.CyclePath)
}

func TestValidateRejectsDuplicateStageNames(t *testing.T) {
	sk := &Skill{
		Name: "dup",
		Stages: []Stage{
			{Name: "A", Prompt: "go"},
			{Name: "A", Prompt: "go again"},
		},
	}
	err := Validate(sk)
	require.Error(t, err)
	var valErr *SkillValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Issues[0], "duplicate stage name")
}

func TestValidateRejectsBothPromptAndSubPipeline(t *testing.T) {
	sk := &Skill{
		Name: "both",
		Stages: []Stage{
			{Name: "A", Prompt: "go", SubPipeline: "other"},
		},
	}
	err := Validate(sk)
	require.Error(t, err)
}

func TestValidateRejectsUnknownInputFrom(t *testing.T) {
	sk := &Skill{
		Name: "badref",
		Stages: []Stage{
			{Name: "A", Prompt: "go", InputFrom: []string{"ghost"}},
		},
	}
	err := Validate(sk)
	require.Error(t, err)
	var valErr *SkillValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Issues[0], "unknown stage")
}

func TestValidateRejectsUnresolvedPrimaryOutput(t *testing.T) {
	sk := &Skill{
		Name: "badoutput",
		Stages: []Stage{
			{Name: "A", Prompt: "go"},
		},
		Output: Output{Primary: "ghost"},
	}
	err := Validate(sk)
	require.Error(t, err)
}

func TestValidateRejectsUndeclaredStageTool(t *testing.T) {
	sk := &Skill{
		Name:          "badtool",
		ToolsRequired: []string{"search"},
		Stages: []Stage{
			{Name: "A", Prompt: "go", Tools: []string{"write_file"}},
		},
	}
	err := Validate(sk)
	require.Error(t, err)
}

func TestValidateDefaultTypeMismatch(t *testing.T) {
	sk := &Skill{
		Name:   "badtype",
		Inputs: []Input{{Name: "ticker", Type: InputString, Default: 42}},
		Stages: []Stage{{Name: "A", Prompt: "go"}},
	}
	err := Validate(sk)
	require.Error(t, err)
}

func TestParsePipelineYAMLHappyPath(t *testing.T) {
	data := []byte(`
name: compare-tickers
description: compare two tickers
inputs:
  - name: ticker
    type: string
    required: true
stages:
  - name: gather
    prompt: "analyze {ticker}"
  - name: summarize
    prompt: "summarize: {gather}"
    input_from: [gather]
output:
  primary: summarize
  format: markdown
`)
	sk, err := ParsePipelineYAML("compare.pipeline.yaml", data)
	require.NoError(t, err)
	assert.Equal(t, "compare-tickers", sk.Name)
	assert.Len(t, sk.ExecutionLevels, 2)
	assert.Equal(t, []string{"gather"}, sk.ExecutionLevels[0])
	assert.Equal(t, []string{"summarize"}, sk.ExecutionLevels[1])
}

func TestParseAgentSkillFrontmatter(t *testing.T) {
	data := []byte("---\nname: ticker-research\ndescription: researches a ticker\n---\nDo the research.\n")
	as, err := ParseAgentSkill("SKILL.md", "/skills/ticker-research", data)
	require.NoError(t, err)
	assert.Equal(t, "ticker-research", as.Name)
	assert.Contains(t, as.Body, "Do the research.")
}

func TestParseAgentSkillRejectsBadName(t *testing.T) {
	data := []byte("---\nname: Ticker_Research\ndescription: x\n---\nbody\n")
	_, err := ParseAgentSkill("SKILL.md", "/skills/x", data)
	require.Error(t, err)
}

func TestResolveResourceRejectsTraversal(t *testing.T) {
	as := &AgentSkill{Dir: "/skills/ticker-research"}
	_, err := ResolveResource(as, "../../etc/passwd")
	require.Error(t, err)
	var resErr *ResourceError
	require.ErrorAs(t, err, &resErr)
}

func TestResolveResourceAcceptsAllowedDir(t *testing.T) {
	as := &AgentSkill{Dir: "/skills/ticker-research"}
	full, err := ResolveResource(as, "scripts/run.sh")
	require.NoError(t, err)
	assert.Equal(t, "/skills/ticker-research/scripts/run.sh", full)
}

func TestResolveResourceRejectsDisallowedTopLevelDir(t *testing.T) {
	as := &AgentSkill{Dir: "/skills/ticker-research"}
	_, err := ResolveResource(as, "secrets/key.pem")
	require.Error(t, err)
}
