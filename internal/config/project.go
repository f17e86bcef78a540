package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ProjectConfig is the scrutari.toml project-level override set (spec §2):
// budget ceiling, default model, and concurrency cap, resolved at session
// start into Session.ConfigOverrides. TOML here is additive to the
// JSON-backed user config in manager.go, not a replacement for it.
type ProjectConfig struct {
	BudgetUSD   float64 `toml:"budget_usd"`
	DefaultModel string `toml:"default_model"`
	Concurrency  int    `toml:"concurrency"`
	SkillsDir    string `toml:"skills_dir"`
}

// LoadProjectConfig reads a scrutari.toml file at path. A missing file is
// not an error; it returns a zero-value ProjectConfig so callers can treat
// "no project config" the same as "empty project config".
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	var pc ProjectConfig
	meta, err := toml.DecodeFile(path, &pc)
	if err != nil {
		if os.IsNotExist(err) {
			return &ProjectConfig{}, nil
		}
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	_ = meta // unused keys are ignored, not an error
	return &pc, nil
}

// ToOverrides flattens a ProjectConfig into the map[string]any shape
// Session.ConfigOverrides stores, dropping zero-valued fields.
func (pc *ProjectConfig) ToOverrides() map[string]any {
	overrides := map[string]any{}
	if pc.BudgetUSD != 0 {
		overrides["budget_usd"] = pc.BudgetUSD
	}
	if pc.DefaultModel != "" {
		overrides["default_model"] = pc.DefaultModel
	}
	if pc.Concurrency != 0 {
		overrides["concurrency"] = pc.Concurrency
	}
	if pc.SkillsDir != "" {
		overrides["skills_dir"] = pc.SkillsDir
	}
	return overrides
}
