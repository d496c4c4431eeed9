// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

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

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestRunTarget_FalseBackendBuildsEveryInvocation(t *testing.T) {
	repo := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "quack.yaml"), []byte(`
app_name: demo
targets:
  - name: "app:build"
    outputs:
      paths: ["out.txt"]
    operations:
      build: "echo hi > out.txt"
`), 0o644))
	chdir(t, repo)
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	globals := GlobalFlags{Quiet: true}
	err := runTarget(context.Background(), []string{"app:build", "--backend", "false"}, globals, procreg.New(logger), logger)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(repo, "out.txt"))
	require.NoError(t, err)

	// With caching disabled nothing restores out.txt: a second invocation
	// has to build it again.
	require.NoError(t, os.Remove(filepath.Join(repo, "out.txt")))
	err = runTarget(context.Background(), []string{"app:build", "--backend", "false"}, globals, procreg.New(logger), logger)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(repo, "out.txt"))
	require.NoError(t, err)
}

func TestRunTarget_RequiresExactlyOneTargetName(t *testing.T) {
	repo := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "quack.yaml"), []byte("app_name: demo\n"), 0o644))
	chdir(t, repo)
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	err := runTarget(context.Background(), []string{}, GlobalFlags{Quiet: true}, procreg.New(logger), logger)
	require.Error(t, err)
}

func TestRunScript_ExecutesNamedScript(t *testing.T) {
	repo := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "quack.yaml"), []byte(`
app_name: demo
scripts:
  - name: "fmt"
    command: "touch scripted.txt"
`), 0o644))
	chdir(t, repo)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	err := runScript(context.Background(), []string{"fmt"}, procreg.New(logger), logger)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(repo, "scripted.txt"))
	require.NoError(t, err)
}

func TestRunScriptsParallel_RequiresAtLeastTwoNames(t *testing.T) {
	repo := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "quack.yaml"), []byte(`
app_name: demo
scripts:
  - name: "fmt"
    command: "true"
`), 0o644))
	chdir(t, repo)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	err := runScriptsParallel(context.Background(), []string{"fmt"}, GlobalFlags{}, procreg.New(logger), logger)
	require.Error(t, err)
}
