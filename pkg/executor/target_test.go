// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paraflow-hq/quack/internal/cienv"
	"github.com/paraflow-hq/quack/internal/config"
	"github.com/paraflow-hq/quack/pkg/cloud"
	"github.com/paraflow-hq/quack/pkg/engine"
	"github.com/paraflow-hq/quack/pkg/spec"
)

func initGitRepo(t *testing.T) string {
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

func writeSpecYAML(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quack.yaml"), []byte(content), 0o644))
}

func TestExecuteTarget_FalseBackendAlwaysBuilds(t *testing.T) {
	repo := initGitRepo(t)
	writeSpecYAML(t, repo, `
app_name: demo
targets:
  - name: "app:build"
    outputs:
      paths: ["out.txt"]
    operations:
      build: "echo hi > out.txt"
`)
	s, err := spec.Load(repo)
	require.NoError(t, err)
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	params := TargetParams{
		Spec: s, RepoRoot: repo, AppName: "demo",
		BackendType: "false", Mode: engine.ModeNormal,
		Environ: os.Environ(), CI: cienv.Info{}, RuntimeCfg: config.RuntimeConfig{},
	}
	outcome, err := ExecuteTarget(context.Background(), "app:build", params)
	require.NoError(t, err)
	require.Equal(t, engine.OutcomeBuilt, outcome)
	_, err = os.Stat(filepath.Join(repo, "out.txt"))
	require.NoError(t, err)
}

func TestExecuteTarget_CloudBackendRoundTripsAndSavesCommitIndex(t *testing.T) {
	repo := initGitRepo(t)
	writeSpecYAML(t, repo, `
app_name: demo
targets:
  - name: "app:build"
    outputs:
      paths: ["out.txt"]
    operations:
      build: "echo hi > out.txt"
`)
	s, err := spec.Load(repo)
	require.NoError(t, err)
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	bucket := t.TempDir()
	driver := cloud.NewFakeDriver(bucket)
	ctx := context.Background()
	ci := cienv.Info{IsCI: true, CommitSHA: "deadbeef"}
	cfg := config.RuntimeConfig{CloudPrefix: ".quack-cache", SaveForLoad: true}

	params := TargetParams{
		Spec: s, RepoRoot: repo, AppName: "demo",
		BackendType: "cloud", Mode: engine.ModeNormal,
		Environ: os.Environ(), CI: ci, RuntimeCfg: cfg, CloudDriver: driver,
	}
	outcome, err := ExecuteTarget(ctx, "app:build", params)
	require.NoError(t, err)
	require.Equal(t, engine.OutcomeBuilt, outcome)

	target := s.Targets["app:build"]
	csum, ok := target.Checksum()
	require.True(t, ok)

	// A follow-up job resolves the same target purely from the commit SHA.
	s2, err := spec.Load(repo)
	require.NoError(t, err)
	loadParams := TargetParams{
		Spec: s2, RepoRoot: repo, AppName: "demo",
		BackendType: "cloud", Mode: engine.ModeLoadOnly,
		Environ: os.Environ(), CI: ci, RuntimeCfg: cfg, CloudDriver: driver,
		LoadFromJobSHA: "deadbeef",
	}
	loadOutcome, err := ExecuteTarget(ctx, "app:build", loadParams)
	require.NoError(t, err)
	require.Equal(t, engine.OutcomeHit, loadOutcome)
	loadedTarget := s2.Targets["app:build"]
	loadedCsum, ok := loadedTarget.Checksum()
	require.True(t, ok)
	require.Equal(t, csum, loadedCsum)
}

func TestExecuteTarget_UnknownBackendErrors(t *testing.T) {
	repo := initGitRepo(t)
	writeSpecYAML(t, repo, `
app_name: demo
targets:
  - name: "app:build"
    outputs:
      paths: ["out.txt"]
    operations:
      build: "echo hi > out.txt"
`)
	s, err := spec.Load(repo)
	require.NoError(t, err)

	params := TargetParams{Spec: s, RepoRoot: repo, AppName: "demo", BackendType: "bogus", Mode: engine.ModeNormal}
	_, err = ExecuteTarget(context.Background(), "app:build", params)
	require.Error(t, err)
}
