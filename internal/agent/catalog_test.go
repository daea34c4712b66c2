package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAgentFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestDiscoverCatalogParsesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "code-agent.md", `---
id: code-agent
name: Code Agent
description: Writes and edits source files.
engine: remote
model: claude-sonnet
category: implementation
persona_config:
  tone: terse
---

You are the code agent.
`)

	configs, warnings, err := DiscoverCatalog(dir)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, configs, 1)
	assert.Equal(t, "code-agent", configs[0].ID)
	assert.Equal(t, "Code Agent", configs[0].Name)
	assert.Equal(t, "claude-sonnet", configs[0].Model)
	assert.Equal(t, "terse", configs[0].PersonaConfig["tone"])
}

func TestDiscoverCatalogSortsByID(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "b.md", "---\nid: zebra\n---\n")
	writeAgentFile(t, dir, "a.md", "---\nid: aardvark\n---\n")

	configs, _, err := DiscoverCatalog(dir)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "aardvark", configs[0].ID)
	assert.Equal(t, "zebra", configs[1].ID)
}

func TestDiscoverCatalogWarnsOnMissingID(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "broken.md", "---\nname: Nameless\n---\n")

	configs, warnings, err := DiscoverCatalog(dir)
	require.NoError(t, err)
	assert.Empty(t, configs)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "missing required id")
}

func TestDiscoverCatalogWarnsOnNoFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "plain.md", "# Just a doc\n\nNo frontmatter here.\n")

	configs, warnings, err := DiscoverCatalog(dir)
	require.NoError(t, err)
	assert.Empty(t, configs)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "no frontmatter")
}

func TestDiscoverCatalogMissingDirIsNotAnError(t *testing.T) {
	configs, warnings, err := DiscoverCatalog(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, configs)
	assert.Empty(t, warnings)
}

func TestDiscoverCatalogIgnoresNonMarkdownFiles(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "notes.txt", "---\nid: ignored\n---\n")

	configs, warnings, err := DiscoverCatalog(dir)
	require.NoError(t, err)
	assert.Empty(t, configs)
	assert.Empty(t, warnings)
}
