package skill

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

var agentNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

const (
	maxAgentNameLen        = 64
	maxAgentDescriptionLen = 1024
)

type agentFrontmatter struct {
	Name          string         `yaml:"name"`
	Description   string         `yaml:"description"`
	License       string         `yaml:"license"`
	Compatibility string         `yaml:"compatibility"`
	Metadata      map[string]any `yaml:"metadata"`
	AllowedTools  []string       `yaml:"allowed-tools"`
}

// ParseAgentSkill parses a SKILL.md file's raw bytes: YAML frontmatter
// between `---` delimiters followed by a free-form Markdown body
// (spec §6). dir is the skill's directory, recorded for later resource
// resolution via ResolveResource.
func ParseAgentSkill(path, dir string, data []byte) (*AgentSkill, error) {
	front, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, &SkillLoadError{Path: path, Err: err}
	}

	var fm agentFrontmatter
	if err := yaml.Unmarshal(front, &fm); err != nil {
		return nil, &SkillLoadError{Path: path, Err: fmt.Errorf("frontmatter: %w", err)}
	}

	as := &AgentSkill{
		Name:          fm.Name,
		Description:   fm.Description,
		License:       fm.License,
		Compatibility: fm.Compatibility,
		Metadata:      fm.Metadata,
		AllowedTools:  fm.AllowedTools,
		Body:          string(body),
		Dir:           dir,
	}

	if err := validateAgentSkill(as); err != nil {
		return nil, err
	}

	// The body is run through goldmark and the output discarded; the engine
	// only ever needs the raw body text. goldmark accepts any input as
	// Markdown (an unterminated fenced block simply runs to the end), so
	// only a conversion error from goldmark itself becomes a load error.
	var discard bytes.Buffer
	if err := goldmark.Convert(body, &discard); err != nil {
		return nil, &SkillLoadError{Path: path, Err: fmt.Errorf("markdown body: %w", err)}
	}

	return as, nil
}

func validateAgentSkill(as *AgentSkill) error {
	var issues []string
	if !agentNamePattern.MatchString(as.Name) {
		issues = append(issues, fmt.Sprintf("name %q must match ^[a-z][a-z0-9-]*$", as.Name))
	}
	if len(as.Name) > maxAgentNameLen {
		issues = append(issues, fmt.Sprintf("name exceeds %d characters", maxAgentNameLen))
	}
	if len(as.Description) > maxAgentDescriptionLen {
		issues = append(issues, fmt.Sprintf("description exceeds %d characters", maxAgentDescriptionLen))
	}
	if len(issues) > 0 {
		return &SkillValidationError{SkillName: as.Name, Issues: issues}
	}
	return nil
}

// splitFrontmatter separates leading `---\n...\n---\n` YAML frontmatter
// from the Markdown body that follows it.
func splitFrontmatter(data []byte) (front, body []byte, err error) {
	text := string(data)
	if !strings.HasPrefix(text, "---") {
		return nil, nil, fmt.Errorf("missing frontmatter delimiter")
	}
	rest := text[3:]
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return nil, nil, fmt.Errorf("unterminated frontmatter block")
	}
	front = []byte(rest[:end])
	afterDelim := rest[end+len("\n---"):]
	afterDelim = strings.TrimPrefix(afterDelim, "\n")
	return front, []byte(afterDelim), nil
}

// allowedResourceDirs are the only subdirectories an agent skill may load
// resource files from (spec §4.5).
var allowedResourceDirs = map[string]bool{"scripts": true, "references": true, "assets": true}

// ResolveResource resolves a resource path relative to an agent skill's
// directory, rejecting anything that escapes {scripts, references,
// assets} via path traversal.
func ResolveResource(as *AgentSkill, relPath string) (string, error) {
	cleaned := filepath.Clean(relPath)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", &ResourceError{Path: relPath, Reason: "escapes skill directory"}
	}
	parts := strings.SplitN(cleaned, string(filepath.Separator), 2)
	if len(parts) == 0 || !allowedResourceDirs[parts[0]] {
		return "", &ResourceError{Path: relPath, Reason: "must resolve inside scripts/, references/, or assets/"}
	}

	full := filepath.Join(as.Dir, cleaned)
	rel, err := filepath.Rel(as.Dir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", &ResourceError{Path: relPath, Reason: "escapes skill directory"}
	}
	return full, nil
}
