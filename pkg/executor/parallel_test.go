// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paraflow-hq/quack/pkg/dependency"
	"github.com/paraflow-hq/quack/pkg/procreg"
	"github.com/paraflow-hq/quack/pkg/spec"
)

func TestExecuteScriptsParallel_RunsAllOnSuccess(t *testing.T) {
	dir := t.TempDir()
	s := &spec.Spec{Scripts: map[string]*spec.Script{
		"a": {Name: "a", Command: dependency.Command{ShellCmd: "touch a.txt", BasePath: dir}},
		"b": {Name: "b", Command: dependency.Command{ShellCmd: "touch b.txt", BasePath: dir}},
	}, Targets: map[string]*spec.Target{}}
	reg := procreg.New(nil)

	err := ExecuteScriptsParallel(context.Background(), s, reg, os.Environ(), nil, false, []string{"a", "b"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "b.txt"))
	require.NoError(t, err)
}

func TestExecuteScriptsParallel_RejectsTargetNames(t *testing.T) {
	s := &spec.Spec{
		Scripts: map[string]*spec.Script{"a": {Name: "a"}},
		Targets: map[string]*spec.Target{"app:build": {Name: "app:build"}},
	}
	reg := procreg.New(nil)
	err := ExecuteScriptsParallel(context.Background(), s, reg, nil, nil, false, []string{"a", "app:build"})
	require.Error(t, err)
}

func TestExecuteScriptsParallel_RejectsUnknownNames(t *testing.T) {
	s := &spec.Spec{Scripts: map[string]*spec.Script{}, Targets: map[string]*spec.Target{}}
	reg := procreg.New(nil)
	err := ExecuteScriptsParallel(context.Background(), s, reg, nil, nil, false, []string{"ghost"})
	require.Error(t, err)
}

func TestExecuteScriptsParallel_FirstFailurePoisonsPool(t *testing.T) {
	dir := t.TempDir()
	s := &spec.Spec{Scripts: map[string]*spec.Script{
		"ok":   {Name: "ok", Command: dependency.Command{ShellCmd: "sleep 0.2 && touch ok.txt", BasePath: dir}},
		"fail": {Name: "fail", Command: dependency.Command{ShellCmd: "exit 1", BasePath: dir}},
	}, Targets: map[string]*spec.Target{}}
	reg := procreg.New(nil)

	err := ExecuteScriptsParallel(context.Background(), s, reg, os.Environ(), nil, false, []string{"ok", "fail"})
	require.Error(t, err)
}
