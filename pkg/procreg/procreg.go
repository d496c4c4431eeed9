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

// Package procreg implements the process-wide command registry: every
// subprocess quack spawns is registered immediately before spawn and
// unregistered on every exit path, so that a signal handler can terminate
// the whole tree (spec.md §5).
package procreg

import (
	"log/slog"
	"os/exec"
	"sync"
)

// Registry tracks every currently-running subprocess, keyed by the
// *exec.Cmd the caller spawned. Safe for concurrent use from
// execute_scripts_parallel's worker pool.
type Registry struct {
	mu     sync.Mutex
	active map[*exec.Cmd]struct{}
	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{active: make(map[*exec.Cmd]struct{}), logger: logger}
}

// Register records cmd as running. Must be called immediately before Start.
func (r *Registry) Register(cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[cmd] = struct{}{}
}

// Unregister removes cmd from the registry. Must be called on every exit
// path: success, failure, or panic recovery.
func (r *Registry) Unregister(cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, cmd)
}

// TerminateAll sends SIGTERM to the process group of every currently
// registered subprocess. Called from signal handlers and atexit; errors
// are logged and swallowed so every child is attempted (spec.md §5).
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	snapshot := make([]*exec.Cmd, 0, len(r.active))
	for cmd := range r.active {
		snapshot = append(snapshot, cmd)
	}
	r.mu.Unlock()

	for _, cmd := range snapshot {
		if err := terminateProcessGroup(cmd); err != nil {
			r.logger.Warn("procreg.terminate.error", "pid", pid(cmd), "err", err)
		}
	}
}

// Len reports how many subprocesses are currently registered (for tests).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func pid(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return -1
	}
	return cmd.Process.Pid
}
