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

// Package engine computes target fingerprints and drives the
// decide-load-or-build state machine (spec.md §4.6). Fingerprinting
// recurses depth-first through upstream target-kind dependencies, memoising
// on the target itself; execution recurses the same way but through the
// cache backend, building only what a cache miss actually requires.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/pkg/cache"
	"github.com/paraflow-hq/quack/pkg/dependency"
	"github.com/paraflow-hq/quack/pkg/gitfiles"
	"github.com/paraflow-hq/quack/pkg/procreg"
	"github.com/paraflow-hq/quack/pkg/spec"
)

// Mode is spec.md §3's TargetExecutionMode.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeDepsOnly Mode = "deps-only"
	ModeLoadOnly Mode = "load-only"
)

// Outcome reports how Execute satisfied the named target, so callers can
// surface a cache hit versus a fresh build to the user (the CACHED/BUILT
// status words) without re-deriving it from the cache backend themselves.
type Outcome int

const (
	// OutcomeDepsOnly means Execute ran in ModeDepsOnly: no cache hit or
	// build happened for this target at all.
	OutcomeDepsOnly Outcome = iota
	// OutcomeHit means the target was served from cache without running
	// its build command.
	OutcomeHit
	// OutcomeBuilt means the target's build command ran because of a
	// cache miss.
	OutcomeBuilt
)

// Engine owns one Spec's target graph plus everything dependency checksum
// computation needs, and one cache Backend to execute against.
type Engine struct {
	Spec     *spec.Spec
	Backend  cache.Backend
	RepoRoot string
	Lister   *gitfiles.Lister
	Environ  []string
	Registry *procreg.Registry
	Logger   *slog.Logger

	visiting map[string]bool
}

// New wires an Engine. ci selects the gitfiles.Lister's git-listing mode
// (spec.md §4.1: CI mode vs developer-machine mode). reg is the process-wide
// subprocess registry a top-level signal handler terminates on shutdown; a
// nil reg gets its own private Registry, for callers (mostly tests) that
// don't need one shared with the rest of the process.
func New(s *spec.Spec, backend cache.Backend, repoRoot string, ci bool, environ []string, reg *procreg.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = procreg.New(logger)
	}
	return &Engine{
		Spec:     s,
		Backend:  backend,
		RepoRoot: repoRoot,
		Lister:   gitfiles.NewLister(repoRoot, ci),
		Environ:  environ,
		Registry: reg,
		Logger:   logger,
		visiting: map[string]bool{},
	}
}

// backendLabel names the concrete cache.Backend for metrics, since the
// Backend interface itself carries no tier name.
func backendLabel(b cache.Backend) string {
	switch b.(type) {
	case *cache.Dev:
		return "dev"
	case *cache.Cloud:
		return "cloud"
	case *cache.Local:
		return "local"
	case *cache.Raw:
		return "false"
	default:
		return "unknown"
	}
}

func (e *Engine) scope() *dependency.Scope {
	return &dependency.Scope{
		RepoRoot:      e.RepoRoot,
		Lister:        e.Lister,
		Environ:       e.Environ,
		Registry:      e.Registry,
		ResolveTarget: e.Fingerprint,
	}
}

// Fingerprint recursively materialises target's checksum_value, memoising
// on the Target itself (spec.md §4.6). A target-kind dependency recurses
// back into Fingerprint for its upstream target; a cycle is reported here at
// evaluation time, while the loader only rejects the cycles it meets while
// expanding output inheritance (see DESIGN.md).
func (e *Engine) Fingerprint(ctx context.Context, name string) (string, error) {
	target, ok := e.Spec.Targets[name]
	if !ok {
		return "", errors.NewSpecError(fmt.Sprintf("unknown target %q", name), nil)
	}
	if csum, ok := target.Checksum(); ok {
		return csum, nil
	}
	if e.visiting[name] {
		return "", errors.NewSpecError(fmt.Sprintf("cycle detected in target dependency graph at %q", name), nil)
	}
	e.visiting[name] = true
	defer delete(e.visiting, name)

	scope := e.scope()
	checksums := make([]string, len(target.Dependencies))
	for i, d := range target.Dependencies {
		csum, err := d.Checksum(ctx, scope)
		if err != nil {
			return "", fmt.Errorf("target %s: dependency %s: %w", name, d.DisplayName(), err)
		}
		// Single most important diagnostic when caches unexpectedly miss
		// (spec.md §4.6).
		e.Logger.Debug("dependency.checksum",
			"target", name, "kind", d.Kind(), "display_name", d.DisplayName(), "checksum", csum)
		checksums[i] = csum
	}

	fingerprint := dependency.Checksum(checksums)
	target.SetChecksum(fingerprint)
	e.Logger.Debug("target.fingerprint", "target", name, "checksum", fingerprint)
	return fingerprint, nil
}

// upstreamTargetNames returns the names of target.Dependencies that are
// target-kind, in declared order.
func upstreamTargetNames(target *spec.Target) []string {
	var names []string
	for _, d := range target.Dependencies {
		if td, ok := d.(*dependency.TargetDep); ok {
			names = append(names, td.Name)
		}
	}
	return names
}
