// Package config is the user- and project-level settings layer. User-global
// settings live in a JSON file under os.UserConfigDir with 0600
// permissions; project-level scrutari.toml overrides are read separately
// via a BurntSushi/toml reader in project.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// HookSetting is the JSON-config shape for a user-configured hook, mapped
// onto hooks.Hook by the caller (kept decoupled so internal/config does not
// import internal/hooks).
type HookSetting struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Phase       string `json:"phase"`
	Stage       string `json:"stage,omitempty"`
	Tool        string `json:"tool,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
	Background  bool   `json:"background,omitempty"`
}

// RetrySettings overrides C3's DefaultConfig per the user's global config.
type RetrySettings struct {
	MaxRetries      int     `json:"max_retries,omitempty"`
	InitialDelayMS  int     `json:"initial_delay_ms,omitempty"`
	MaxDelayMS      int     `json:"max_delay_ms,omitempty"`
	Multiplier      float64 `json:"multiplier,omitempty"`
	PerAttemptLimit int     `json:"per_attempt_limit_ms,omitempty"`
}

// Config holds the user's persistent configuration preferences.
type Config struct {
	LLMProvider  string `json:"llm_provider,omitempty"`  // openai, anthropic, kimi, etc.
	APIKey       string `json:"api_key,omitempty"`       // The API key for the selected provider
	Model        string `json:"model,omitempty"`         // Default model name
	AutoIndex    bool   `json:"auto_index"`              // Whether to auto-index new projects
	BaseURL      string `json:"base_url,omitempty"`      // Optional override for API base URL
	EmbeddingKey string `json:"embedding_key,omitempty"` // Optional separate key for embeddings

	BudgetUSD               float64       `json:"budget_usd,omitempty"`
	Retry                   RetrySettings `json:"retry,omitempty"`
	Hooks                   []HookSetting `json:"hooks,omitempty"`
	CompactionAutoThreshold float64       `json:"compaction_auto_threshold,omitempty"`
	PreserveTurns           int           `json:"preserve_turns,omitempty"`
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager rooted at
// <os.UserConfigDir>/scrutari.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}

	scrutariConfigDir := filepath.Join(configDir, "scrutari")
	return &Manager{
		configDir: scrutariConfigDir,
	}, nil
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk.
// If the file does not exist, it returns an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	// Ensure directory exists
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := m.GetConfigPath()
	// Write with 0600 permissions (read/write only by owner)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
