// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitfiles

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	run("config", "user.email", "quack@example.com")
	run("config", "user.name", "quack")
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLister_FilesMemoisesAcrossCalls(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "tracked.txt", "hi")

	cmd := exec.Command("git", "add", "tracked.txt")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	l := NewLister(dir, false)
	ctx := context.Background()

	first, err := l.Files(ctx)
	require.NoError(t, err)
	require.Contains(t, first, "tracked.txt")

	// Adding a new file after the first call must not appear: the list is
	// memoised for the lifetime of the Lister (spec.md §4.1).
	writeFile(t, dir, "later.txt", "hi")
	second, err := l.Files(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestLister_CIModeExcludesUntracked(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "untracked.txt", "hi")

	l := NewLister(dir, true)
	files, err := l.Files(context.Background())
	require.NoError(t, err)
	require.NotContains(t, files, "untracked.txt")
}

func TestLister_DevModeIncludesUntracked(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "untracked.txt", "hi")

	l := NewLister(dir, false)
	files, err := l.Files(context.Background())
	require.NoError(t, err)
	require.Contains(t, files, "untracked.txt")
}
