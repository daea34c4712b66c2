package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterDelim brackets the YAML block at the top of an agent file
// (spec §9 design notes: "dynamic model selection metadata embedded in
// Markdown frontmatter").
const frontmatterDelim = "---"

// frontmatter is the structured deserialization target for an agent file's
// YAML header. Keys not listed here are ignored by the YAML decoder: they
// are not collected and produce no warning.
type frontmatter struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	Engine         string            `yaml:"engine"`
	Model          string            `yaml:"model"`
	CostTier       string            `yaml:"cost_tier"`
	FallbackEngine string            `yaml:"fallback_engine"`
	FallbackModel  string            `yaml:"fallback_model"`
	Category       string            `yaml:"category"`
	PersonaConfig  map[string]string `yaml:"persona_config"`
}

// DiscoverCatalog walks dir for *.md files, parses each one's YAML
// frontmatter into an AgentConfig, and returns the resulting configs sorted
// by ID alongside any non-fatal problems found along the way (a missing id,
// a file with no frontmatter block, a YAML parse error). A single bad file
// never aborts discovery of the rest of the catalog.
func DiscoverCatalog(dir string) ([]Config, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("agent: read catalog dir %s: %w", dir, err)
	}

	var configs []Config
	var warnings []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, warn, err := parseAgentFile(path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("%s: %s", entry.Name(), warn))
			continue
		}
		configs = append(configs, cfg)
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs, warnings, nil
}

// parseAgentFile extracts the frontmatter block from path and converts it
// into a Config. The file body after the closing delimiter becomes
// Config.PromptPath's referent but is not itself read here; callers load
// prompt text lazily when an agent is actually invoked.
func parseAgentFile(path string) (Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, "", fmt.Errorf("read: %w", err)
	}

	block, ok := extractFrontmatter(string(data))
	if !ok {
		return Config{}, "no frontmatter block found", nil
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return Config{}, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	if fm.ID == "" {
		return Config{}, "frontmatter missing required id field", nil
	}

	return Config{
		ID:             fm.ID,
		Name:           fm.Name,
		Description:    fm.Description,
		PromptPath:     path,
		Engine:         fm.Engine,
		Model:          fm.Model,
		CostTier:       CostTier(fm.CostTier),
		FallbackEngine: fm.FallbackEngine,
		FallbackModel:  fm.FallbackModel,
		Category:       fm.Category,
		PersonaConfig:  fm.PersonaConfig,
	}, "", nil
}

// extractFrontmatter returns the YAML between a file's leading "---" lines.
func extractFrontmatter(content string) (string, bool) {
	content = strings.TrimPrefix(content, "﻿")
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelim {
		return "", false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelim {
			return strings.Join(lines[1:i], "\n"), true
		}
	}
	return "", false
}
