package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{configDir: dir}

	cfg := &Config{Model: "claude-sonnet-4", BudgetUSD: 10, Hooks: []HookSetting{{Command: "echo hi", Phase: "pre_stage"}}}
	require.NoError(t, m.Save(cfg))

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4", loaded.Model)
	assert.Equal(t, 10.0, loaded.BudgetUSD)
	require.Len(t, loaded.Hooks, 1)
	assert.Equal(t, "echo hi", loaded.Hooks[0].Command)
}

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	m := &Manager{configDir: t.TempDir()}
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoadProjectConfigMissingFileIsEmpty(t *testing.T) {
	pc, err := LoadProjectConfig(filepath.Join(t.TempDir(), "scrutari.toml"))
	require.NoError(t, err)
	assert.Equal(t, &ProjectConfig{}, pc)
}

func TestLoadProjectConfigParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scrutari.toml")
	content := "budget_usd = 5.5\ndefault_model = \"gpt-5\"\nconcurrency = 3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	pc, err := LoadProjectConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5.5, pc.BudgetUSD)
	assert.Equal(t, "gpt-5", pc.DefaultModel)
	assert.Equal(t, 3, pc.Concurrency)

	overrides := pc.ToOverrides()
	assert.Equal(t, 5.5, overrides["budget_usd"])
	assert.Equal(t, "gpt-5", overrides["default_model"])
}
