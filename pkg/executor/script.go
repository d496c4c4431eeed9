// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executor implements spec.md §4.7's executor surface:
// execute_script, execute_scripts_parallel, execute_target. These sit above
// pkg/engine: engine resolves one target's fingerprint and cache decision,
// executor wires a Spec, a cache backend, and the CLI-level concerns
// (script argument forwarding, parallel fan-out, commit-SHA resolution)
// around it.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/pkg/procreg"
	"github.com/paraflow-hq/quack/pkg/spec"
)

// ExecuteScript looks up name in s.Scripts and runs its command with args
// appended to the shell command line (spec.md §4.7, grounded on
// original_source/src/quack/models/command.py's `" ".join((command, *args))`
// join — args are shell-joined onto the declared command, not passed as
// execve argv). A non-zero exit aborts the invocation.
func ExecuteScript(ctx context.Context, s *spec.Spec, reg *procreg.Registry, environ []string, logger *slog.Logger, name string, args []string) error {
	script, ok := s.Scripts[name]
	if !ok {
		return errors.NewSpecError(fmt.Sprintf("unknown script %q", name), nil)
	}
	return runScript(ctx, reg, environ, logger, script, args)
}

func runScript(ctx context.Context, reg *procreg.Registry, environ []string, logger *slog.Logger, script *spec.Script, args []string) error {
	if logger == nil {
		logger = slog.Default()
	}
	shellCmd := script.Command.ShellCmd
	if len(args) > 0 {
		shellCmd = strings.Join(append([]string{shellCmd}, args...), " ")
	}
	logger.Info("script.execute", "name", script.Name, "command", shellCmd)
	result, err := procreg.Run(ctx, reg, shellCmd, script.Command.Cwd(), script.Command.Env(environ))
	if err != nil {
		return errors.NewBuildError(script.Name, result.ExitCode, err)
	}
	return nil
}
