package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestTarSnapshotterCreateAndRestore(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, workDir, "note.txt", "hello")

	s := NewTarSnapshotter(t.TempDir())
	id, err := s.Snapshot(workDir, "initial snapshot")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	destDir := t.TempDir()
	require.NoError(t, s.Restore(id, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestTarSnapshotterRestoreReflectsSnapshotTime(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, workDir, "note.txt", "original content")

	s := NewTarSnapshotter(t.TempDir())
	id, err := s.Snapshot(workDir, "before modification")
	require.NoError(t, err)

	writeFile(t, workDir, "note.txt", "modified content")

	destDir := t.TempDir()
	require.NoError(t, s.Restore(id, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original content", string(data))
}

func TestTarSnapshotterList(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, workDir, "a.txt", "a")

	s := NewTarSnapshotter(t.TempDir())
	_, err := s.Snapshot(workDir, "CP1")
	require.NoError(t, err)
	_, err = s.Snapshot(workDir, "CP2")
	require.NoError(t, err)

	records, err := s.List()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestTarSnapshotterListEmpty(t *testing.T) {
	s := NewTarSnapshotter(t.TempDir())
	records, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTarSnapshotterRestoreNotFound(t *testing.T) {
	s := NewTarSnapshotter(t.TempDir())
	err := s.Restore("nonexistent-checkpoint", t.TempDir())
	assert.Error(t, err)
}

func TestTarSnapshotterPreservesSubdirectories(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "sub"), 0o700))
	writeFile(t, filepath.Join(workDir, "sub"), "nested.txt", "nested content")

	s := NewTarSnapshotter(t.TempDir())
	id, err := s.Snapshot(workDir, "with subdir")
	require.NoError(t, err)

	destDir := t.TempDir()
	require.NoError(t, s.Restore(id, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "sub", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested content", string(data))
}
