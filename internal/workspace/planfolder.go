package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	planFileName         = "plan.json"
	planManifestFileName = "plan_manifest.json"
	specificationsName   = "specifications.md"
	artifactsDirName     = "artifacts"
	memoryDirName        = "memory"
	promptsDirName       = "prompts"
)

var slugDisallowed = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, replaces runs of non-alphanumeric characters with a
// single hyphen, and trims leading/trailing hyphens, matching the
// `<REQ>-<slug>/` folder-naming convention.
func Slugify(s string) string {
	lowered := strings.ToLower(s)
	lowered = strings.ReplaceAll(lowered, " ", "-")
	slug := slugDisallowed.ReplaceAllString(lowered, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	return slug
}

// PlanFolder is the set of paths under one `<REQ>-<slug>/` backlog entry.
type PlanFolder struct {
	Root string
}

// PlanFolder returns the PlanFolder for requirementID/slug under the
// workspace's backlog directory. It does not touch the filesystem.
func (l Layout) PlanFolder(requirementID, slug string) PlanFolder {
	name := requirementID
	if slug != "" {
		name = requirementID + "-" + slug
	}
	return PlanFolder{Root: filepath.Join(l.BacklogDir(), name)}
}

// PlanFile is the lightweight Plan row (spec §3: requirement_id,
// project_name, folder_name, status, timestamps, totals).
func (p PlanFolder) PlanFile() string { return filepath.Join(p.Root, planFileName) }

// PlanManifestFile is the full PlanManifest body (ordered Iterations).
func (p PlanFolder) PlanManifestFile() string {
	return filepath.Join(p.Root, "plan", planManifestFileName)
}

// SpecificationsFile is the free-form specification markdown for this
// requirement.
func (p PlanFolder) SpecificationsFile() string { return filepath.Join(p.Root, specificationsName) }

// ArtifactsDir holds task-produced output files.
func (p PlanFolder) ArtifactsDir() string { return filepath.Join(p.Root, artifactsDirName) }

// MemoryDir holds per-agent working memory.
func (p PlanFolder) MemoryDir() string { return filepath.Join(p.Root, memoryDirName) }

// PromptsDir holds the prompts used to produce this plan.
func (p PlanFolder) PromptsDir() string { return filepath.Join(p.Root, promptsDirName) }

// Ensure creates the plan folder's directory skeleton (plan/, artifacts/,
// memory/, prompts/). It does not write plan.json or the manifest.
func (p PlanFolder) Ensure() error {
	dirs := []string{
		p.Root,
		filepath.Dir(p.PlanManifestFile()),
		p.ArtifactsDir(),
		p.MemoryDir(),
		p.PromptsDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, dirMode); err != nil {
			return fmt.Errorf("workspace: create plan folder %s: %w", d, err)
		}
	}
	return nil
}
