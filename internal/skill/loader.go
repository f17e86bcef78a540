package skill

import (
	"strings"
	"sync"
)

// Loader holds every skill loaded so far, keyed by name. File discovery and
// reading are the caller's responsibility (spec §1 treats file I/O as an
// external collaborator); Loader only parses bytes handed to it and
// enforces the invariants of §4.5.
type Loader struct {
	mu       sync.RWMutex
	skills   map[string]*Skill
	agents   map[string]*AgentSkill
}

// NewLoader returns an empty Loader.
func NewLoader() *Loader {
	return &Loader{
		skills: make(map[string]*Skill),
		agents: make(map[string]*AgentSkill),
	}
}

// LoadPipeline parses and validates a pipeline skill and registers it under
// its declared name, replacing any previous skill of that name (supports
// hot-reload via Watcher).
func (l *Loader) LoadPipeline(path string, data []byte) (*Skill, error) {
	sk, err := ParsePipelineYAML(path, data)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.skills[sk.Name] = sk
	l.mu.Unlock()
	return sk, nil
}

// LoadAgent parses and validates an agent skill (SKILL.md) and registers it.
func (l *Loader) LoadAgent(path, dir string, data []byte) (*AgentSkill, error) {
	as, err := ParseAgentSkill(path, dir, data)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.agents[as.Name] = as
	l.mu.Unlock()
	return as, nil
}

// Register adds an already-built Skill directly, bypassing YAML parsing.
// Used for programmatically assembled pipelines and in tests.
func (l *Loader) Register(sk *Skill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skills[sk.Name] = sk
}

// Pipeline returns a previously loaded pipeline skill by name.
func (l *Loader) Pipeline(name string) (*Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sk, ok := l.skills[name]
	return sk, ok
}

// Agent returns a previously loaded agent skill by name.
func (l *Loader) Agent(name string) (*AgentSkill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	as, ok := l.agents[name]
	return as, ok
}

// Remove drops a skill (used when a hot-reload detects a deletion). It
// tries both registries since the caller's filename alone does not
// disambiguate.
func (l *Loader) Remove(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.skills, name)
	delete(l.agents, name)
}

// IsPipelineFile reports whether path looks like a pipeline skill file,
// per the .pipeline.yaml/.yaml suffix rule of spec §6.
func IsPipelineFile(path string) bool {
	return strings.HasSuffix(path, ".pipeline.yaml") || strings.HasSuffix(path, ".yaml")
}

// IsAgentFile reports whether path is an agent skill's SKILL.md.
func IsAgentFile(path string) bool {
	return strings.HasSuffix(path, "SKILL.md")
}
