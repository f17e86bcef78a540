// Package estimate implements the Cost/Time Estimator (C7): before a
// pipeline runs, it walks the skill DAG (recursing into sub-pipelines) and
// produces a PipelineEstimate driving the pre-execution approval gate —
// spec §4.7, using internal/pipeline's agent-default table to fill in
// per-stage model/token defaults a skill doesn't pin explicitly.
package estimate

import (
	"fmt"

	"github.com/ChamsBouzaiene/scrutari/internal/catalog"
	"github.com/ChamsBouzaiene/scrutari/internal/pipeline"
	"github.com/ChamsBouzaiene/scrutari/internal/skill"
)

// StageEstimate is one stage's pre-execution cost/time projection.
type StageEstimate struct {
	StageName       string
	Model           string
	AgentType       skill.AgentType
	EstInputTokens  int
	EstOutputTokens int
	EstCostUSD      float64
	EstTimeSeconds  float64
	Tools           []string
}

// PipelineEstimate is C7's output, consumed by an external approval gate.
type PipelineEstimate struct {
	SkillName        string
	Stages           []StageEstimate
	ExecutionLevels  [][]string
	TotalCostUSD     float64
	TotalTimeSeconds float64
	ToolsRequired    []string
	ToolsOptional    []string
}

// Estimator produces PipelineEstimates against a catalog and a loader (the
// latter resolves named sub-pipelines).
type Estimator struct {
	Loader  *skill.Loader
	Catalog *catalog.Catalog
}

// New builds an Estimator.
func New(loader *skill.Loader, cat *catalog.Catalog) *Estimator {
	return &Estimator{Loader: loader, Catalog: cat}
}

// Estimate walks sk's DAG and produces its PipelineEstimate. modelOverride,
// if non-empty, takes priority over every stage's resolved model, mirroring
// the Pipeline Engine's own override precedence.
func (e *Estimator) Estimate(sk *skill.Skill, modelOverride string) *PipelineEstimate {
	pe := &PipelineEstimate{
		SkillName:       sk.Name,
		ExecutionLevels: sk.ExecutionLevels,
		ToolsRequired:   sk.ToolsRequired,
		ToolsOptional:   sk.ToolsOptional,
	}

	var totalTime float64
	for _, level := range sk.ExecutionLevels {
		var levelMax float64
		for _, name := range level {
			st, ok := sk.StageByName(name)
			if !ok {
				continue
			}
			stageEstimates, stageTime := e.estimateStage(st, modelOverride, "")
			pe.Stages = append(pe.Stages, stageEstimates...)
			if stageTime > levelMax {
				levelMax = stageTime
			}
		}
		totalTime += levelMax
	}
	pe.TotalTimeSeconds = totalTime

	for _, se := range pe.Stages {
		pe.TotalCostUSD += se.EstCostUSD
	}

	return pe
}

// estimateStage returns the flattened list of estimates this stage
// contributes (itself, or its sub-skill's stages under a "parent/" prefix)
// and the scalar time this stage takes as a whole (used by the caller's
// level-max computation — a sub-pipeline's own internal levels already
// collapse to one total via recursion).
func (e *Estimator) estimateStage(st skill.Stage, modelOverride, namePrefix string) ([]StageEstimate, float64) {
	name := namePrefix + st.Name

	if st.IsSubPipeline() {
		sub, ok := e.Loader.Pipeline(st.SubPipeline)
		if !ok {
			// Unresolvable sub-pipeline: one fallback estimate named after
			// the parent stage, using the default agent bundle.
			defaults := pipeline.ResolveDefaults(skill.AgentDefault)
			model := defaults.Model
			if modelOverride != "" {
				model = modelOverride
			}
			est := buildEstimate(e.Catalog, name, model, skill.AgentDefault, defaults.MaxTokens, nil)
			return []StageEstimate{est}, est.EstTimeSeconds
		}

		var flattened []StageEstimate
		var subTotalTime float64
		for _, level := range sub.ExecutionLevels {
			var levelMax float64
			for _, subName := range level {
				subSt, ok := sub.StageByName(subName)
				if !ok {
					continue
				}
				subEstimates, subStageTime := e.estimateStage(subSt, modelOverride, name+"/")
				flattened = append(flattened, subEstimates...)
				if subStageTime > levelMax {
					levelMax = subStageTime
				}
			}
			subTotalTime += levelMax
		}
		return flattened, subTotalTime
	}

	at := pipeline.ResolveAgentType(st)
	defaults := pipeline.ResolveDefaults(at)
	model := defaults.Model
	if modelOverride != "" {
		model = modelOverride
	} else if st.Model != "" {
		model = st.Model
	}
	maxTokens := defaults.MaxTokens
	if st.MaxTokens > 0 {
		maxTokens = st.MaxTokens
	}

	est := buildEstimate(e.Catalog, name, model, at, maxTokens, st.Tools)
	return []StageEstimate{est}, est.EstTimeSeconds
}

func buildEstimate(cat *catalog.Catalog, name, model string, at skill.AgentType, maxTokens int, tools []string) StageEstimate {
	estOut := maxTokens
	estIn := 2 * estOut
	return StageEstimate{
		StageName:       name,
		Model:           model,
		AgentType:       at,
		EstInputTokens:  estIn,
		EstOutputTokens: estOut,
		EstCostUSD:      cat.Cost(model, estIn, estOut),
		EstTimeSeconds:  cat.Time(model, estOut),
		Tools:           tools,
	}
}

// Describe renders a one-line human summary, useful for the external
// approval-gate prompt (the gate's actual UI is out of scope).
func (pe *PipelineEstimate) Describe() string {
	return fmt.Sprintf("%s: %d stage(s), est. $%.4f, est. %.1fs", pe.SkillName, len(pe.Stages), pe.TotalCostUSD, pe.TotalTimeSeconds)
}
