package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/scrutari/internal/catalog"
	"github.com/ChamsBouzaiene/scrutari/internal/skill"
)

func linearSkill() *skill.Skill {
	return &skill.Skill{
		Name: "two_stage",
		Stages: []skill.Stage{
			{Name: "gather", Prompt: "gather {ticker}", MaxTokens: 1000},
			{Name: "summarize", Prompt: "summarize: {gather}", InputFrom: []string{"gather"}, MaxTokens: 500},
		},
		Output:          skill.Output{Primary: "summarize"},
		ExecutionLevels: [][]string{{"gather"}, {"summarize"}},
	}
}

func TestEstimateLinearSkillSumsStagesAndLevelMaxTime(t *testing.T) {
	loader := skill.NewLoader()
	est := New(loader, catalog.Default()).Estimate(linearSkill(), "")

	require.Len(t, est.Stages, 2)
	assert.Equal(t, "two_stage", est.SkillName)
	assert.Greater(t, est.TotalCostUSD, 0.0)
	assert.Greater(t, est.TotalTimeSeconds, 0.0)
	assert.InDelta(t, est.Stages[0].EstCostUSD+est.Stages[1].EstCostUSD, est.TotalCostUSD, 1e-12)
	// Two single-stage levels: each level's max is its only stage's time.
	assert.InDelta(t, est.Stages[0].EstTimeSeconds+est.Stages[1].EstTimeSeconds, est.TotalTimeSeconds, 1e-9)
}

func TestEstimateModelOverrideAppliesToEveryStage(t *testing.T) {
	loader := skill.NewLoader()
	est := New(loader, catalog.Default()).Estimate(linearSkill(), "gpt-4o-mini")
	for _, s := range est.Stages {
		assert.Equal(t, "gpt-4o-mini", s.Model)
	}
}

func TestEstimateRecursesIntoSubPipelineWithPrefixedNames(t *testing.T) {
	loader := skill.NewLoader()
	child := linearSkill()
	child.Name = "child"
	loader.Register(child)

	parent := &skill.Skill{
		Name: "parent",
		Stages: []skill.Stage{
			{Name: "delegate", SubPipeline: "child", SubInputs: map[string]string{"ticker": "input:ticker"}},
		},
		Output:          skill.Output{Primary: "delegate"},
		ExecutionLevels: [][]string{{"delegate"}},
	}

	est := New(loader, catalog.Default()).Estimate(parent, "")
	require.Len(t, est.Stages, 2)
	assert.Equal(t, "delegate/gather", est.Stages[0].StageName)
	assert.Equal(t, "delegate/summarize", est.Stages[1].StageName)
}

func TestEstimateUnresolvedSubPipelineFallsBackToOneEstimate(t *testing.T) {
	loader := skill.NewLoader()
	parent := &skill.Skill{
		Name: "parent",
		Stages: []skill.Stage{
			{Name: "delegate", SubPipeline: "missing"},
		},
		Output:          skill.Output{Primary: "delegate"},
		ExecutionLevels: [][]string{{"delegate"}},
	}

	est := New(loader, catalog.Default()).Estimate(parent, "")
	require.Len(t, est.Stages, 1)
	assert.Equal(t, "delegate", est.Stages[0].StageName)
	assert.Equal(t, skill.AgentDefault, est.Stages[0].AgentType)
}

func TestDescribeFormatsSummary(t *testing.T) {
	loader := skill.NewLoader()
	est := New(loader, catalog.Default()).Estimate(linearSkill(), "")
	assert.Contains(t, est.Describe(), "two_stage")
}
