// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dependency

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paraflow-hq/quack/pkg/gitfiles"
	"github.com/paraflow-hq/quack/pkg/procreg"
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

func commitFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	cmd := exec.Command("git", "add", name)
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
}

func newScope(dir string) *Scope {
	return &Scope{
		RepoRoot: dir,
		Lister:   gitfiles.NewLister(dir, true),
		Environ:  []string{"QUACK_MOCK_DEBUG=1", "QUACK_MOCK_CI_ENVIRONMENT=testing", "QUACK_MOCK_LOG_LEVEL=INFO"},
		Registry: procreg.New(nil),
	}
}

func TestSource_ChecksumDeterministicAndChangeDetecting(t *testing.T) {
	dir := initRepo(t)
	commitFile(t, dir, "README.md", "hello")
	scope := newScope(dir)

	src := &Source{Paths: []string{"^README.md$"}}
	ctx := context.Background()

	c1, err := src.Checksum(ctx, scope)
	require.NoError(t, err)
	c2, err := src.Checksum(ctx, scope)
	require.NoError(t, err)
	require.Equal(t, c1, c2)

	commitFile(t, dir, "README.md", "hello world")
	c3, err := src.Checksum(ctx, scope)
	require.NoError(t, err)
	require.NotEqual(t, c1, c3)
}

func TestSource_ExcludesWin(t *testing.T) {
	dir := initRepo(t)
	commitFile(t, dir, "README.md", "hello")
	commitFile(t, dir, "src/main.go", "package main")
	scope := newScope(dir)

	src := &Source{Paths: []string{"^README.md$", "^src/.*$"}, Excludes: []string{"^README.md$"}}
	files, err := src.MatchedFiles(context.Background(), scope)
	require.NoError(t, err)
	require.NotContains(t, files, "README.md")
	require.Contains(t, files, "src/main.go")
}

func TestSource_UnmatchedIncludeRegexIsSpecError(t *testing.T) {
	dir := initRepo(t)
	commitFile(t, dir, "README.md", "hello")
	scope := newScope(dir)

	src := &Source{Paths: []string{"^README.md$", "^does-not-exist/.*$"}}
	_, err := src.MatchedFiles(context.Background(), scope)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does-not-exist")
}

func TestSource_UnmatchedExcludeRegexIsSpecError(t *testing.T) {
	dir := initRepo(t)
	commitFile(t, dir, "README.md", "hello")
	scope := newScope(dir)

	src := &Source{Paths: []string{"^README.md$"}, Excludes: []string{"^never-matches\\.md$"}}
	_, err := src.MatchedFiles(context.Background(), scope)
	require.Error(t, err)
	require.Contains(t, err.Error(), "never-matches")
}

func TestVariable_ChecksumOverSortedMatches(t *testing.T) {
	dir := initRepo(t)
	scope := newScope(dir)

	v := &Variable{Names: []string{"^QUACK_MOCK_.*$"}, Excludes: []string{"^QUACK_MOCK_LOG_.*$"}}
	csum, err := v.Checksum(context.Background(), scope)
	require.NoError(t, err)

	want := ChecksumPairs([][2]string{
		{"QUACK_MOCK_CI_ENVIRONMENT", "testing"},
		{"QUACK_MOCK_DEBUG", "1"},
	})
	require.Equal(t, want, csum)
}

func TestCommandDep_ChecksumPreservesDeclaredOrder(t *testing.T) {
	dir := initRepo(t)
	scope := newScope(dir)

	dep := &CommandDep{Commands: []Command{
		{ShellCmd: "printf '1'"},
		{ShellCmd: "printf '2'"},
		{ShellCmd: "printf '3'", Path: "."},
	}}
	csum, err := dep.Checksum(context.Background(), scope)
	require.NoError(t, err)

	want := ChecksumPairs([][2]string{
		{"printf '1'", "1"},
		{"printf '2'", "2"},
		{"printf '3'", "3"},
	})
	require.Equal(t, want, csum)
}

func TestTargetDep_DelegatesToResolver(t *testing.T) {
	scope := &Scope{
		ResolveTarget: func(ctx context.Context, name string) (string, error) {
			require.Equal(t, "app:upstream", name)
			return "deadbeef", nil
		},
	}
	dep := &TargetDep{Name: "app:upstream"}
	csum, err := dep.Checksum(context.Background(), scope)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", csum)
}

func TestGlobal_ChecksumIsImpossibleState(t *testing.T) {
	g := &Global{Name: "shared"}
	_, err := g.Checksum(context.Background(), &Scope{})
	require.ErrorIs(t, err, ErrUnresolvedGlobal)
}

func TestRepr_StableAcrossCalls(t *testing.T) {
	items := []string{"a", "b", "c"}
	require.Equal(t, Repr(items), Repr(items))
	require.Equal(t, Checksum(items), Checksum(items))
}
