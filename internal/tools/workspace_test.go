package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkspaceReadWrite(t *testing.T) {
	dir := t.TempDir()
	ws, err := NewWorkspace(dir, true)
	require.NoError(t, err)

	require.NoError(t, ws.WriteFile("sub/note.txt", "hello"))
	content, err := ws.ReadFile("sub/note.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", content)
}

func TestWorkspaceWriteDisabled(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), false)
	require.NoError(t, err)
	require.Error(t, ws.WriteFile("x.txt", "nope"))
}

func TestWorkspaceRejectsEscape(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), true)
	require.NoError(t, err)

	_, err = ws.ReadFile("../../etc/passwd")
	require.Error(t, err)
	require.Error(t, ws.WriteFile("../outside.txt", "x"))
}

func TestWorkspaceGlobAndSearch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "a.md"), []byte("alpha TODO beta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("package b"), 0o644))

	ws, err := NewWorkspace(dir, false)
	require.NoError(t, err)

	found, err := ws.Glob(".", "*.md", 10)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join("docs", "a.md")}, found)

	matches, err := ws.Search(".", "TODO", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, 1, matches[0].Line)
}

func TestShallowListingSkipsInternalDirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))

	ws, err := NewWorkspace(dir, false)
	require.NoError(t, err)

	listing := ws.ShallowListing()
	require.Contains(t, listing, "src/")
	require.Contains(t, listing, "README.md")
	require.NotContains(t, listing, ".git")
}
