// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dependency

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/paraflow-hq/quack/pkg/procreg"
)

// Command is the shared shell-invocation primitive: a target's build
// operation, a script, and a command-kind dependency all carry one of
// these (spec.md §3 "Command").
type Command struct {
	ShellCmd  string
	BasePath  string
	Path      string
	Variables map[string]string
}

// Cwd resolves the working directory: base_path / path (spec.md §3).
func (c Command) Cwd() string {
	return filepath.Clean(filepath.Join(c.BasePath, c.Path))
}

// Env overlays c.Variables additively on top of base (spec.md §3
// supplemented detail: the overlay is additive, never a full replacement —
// a missing inherited variable would silently change every downstream
// fingerprint that reads it).
func (c Command) Env(base []string) []string {
	if len(c.Variables) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(c.Variables))
	for _, kv := range base {
		if i := indexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range c.Variables {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Run executes the command under reg, returning its captured stdout.
func (c Command) Run(ctx context.Context, reg *procreg.Registry, baseEnv []string) (string, error) {
	result, err := procreg.Run(ctx, reg, c.ShellCmd, c.Cwd(), c.Env(baseEnv))
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// CommandDep is the `command`-kind dependency: its checksum is derived
// from the stdout of each declared command, in declared order (spec.md
// §4.1: "O = sorted list [(cmd_i, stdout_i)] in declared order" — the
// list's order is the declaration order, not a re-sort).
type CommandDep struct {
	Commands      []Command
	PropagateFlag bool
}

func (c *CommandDep) Kind() Kind      { return KindCommand }
func (c *CommandDep) Propagate() bool { return c.PropagateFlag }
func (c *CommandDep) DisplayName() string {
	if len(c.Commands) == 0 {
		return "command:<empty>"
	}
	return "command:" + c.Commands[0].ShellCmd
}

func (c *CommandDep) Checksum(ctx context.Context, scope *Scope) (string, error) {
	pairs := make([][2]string, len(c.Commands))
	for i, cmd := range c.Commands {
		stdout, err := cmd.Run(ctx, scope.Registry, scope.Environ)
		if err != nil {
			return "", err
		}
		pairs[i] = [2]string{cmd.ShellCmd, stdout}
	}
	return ChecksumPairs(pairs), nil
}
