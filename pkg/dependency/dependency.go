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

// Package dependency implements the four checksum-contributing dependency
// kinds (source, command, variable, target) plus the pre-resolution
// "global" placeholder, per spec.md §4.1 and §4.3.
package dependency

import (
	"context"
	"fmt"

	"github.com/paraflow-hq/quack/pkg/gitfiles"
	"github.com/paraflow-hq/quack/pkg/procreg"
)

// Kind discriminates the tagged union of dependency variants.
type Kind string

const (
	KindSource   Kind = "source"
	KindCommand  Kind = "command"
	KindVariable Kind = "variable"
	KindTarget   Kind = "target"
	KindGlobal   Kind = "global"
)

// Dependency is the operation every variant implements. Checksum must be
// deterministic for byte-identical inputs (spec.md §3 invariant).
type Dependency interface {
	Kind() Kind
	DisplayName() string
	Propagate() bool
	Checksum(ctx context.Context, scope *Scope) (string, error)
}

// Scope carries everything a Checksum call needs from its environment: the
// memoised git file list, the inherited process environment, the command
// registry commands run under, and a callback to resolve an upstream
// target's checksum (supplied by the engine, which owns the target graph
// and its own memoisation — see pkg/engine).
type Scope struct {
	RepoRoot string
	Lister   *gitfiles.Lister
	Environ  []string
	Registry *procreg.Registry

	// ResolveTarget returns the memoised checksum_value of another target
	// by name, recursing into its own fingerprint computation if needed.
	ResolveTarget func(ctx context.Context, name string) (string, error)
}

// ErrUnresolvedGlobal is returned if a Global placeholder is ever asked for
// its checksum: post-processing (spec.md §4.4) must substitute every global
// reference before any fingerprint is computed. Reaching this is a bug in
// the post-processor, not a user error.
var ErrUnresolvedGlobal = fmt.Errorf("internal: global dependency reached checksum computation unresolved")

// Global is the pre-resolution placeholder for a `global`-kind dependency
// reference. It is never present after spec.md §4.4 post-processing
// completes; an exhaustive match against Kind should treat its survival as
// an impossible-state error (spec.md §9).
type Global struct {
	Name          string
	PropagateFlag bool
}

func (g *Global) Kind() Kind          { return KindGlobal }
func (g *Global) DisplayName() string { return "global:" + g.Name }
func (g *Global) Propagate() bool     { return g.PropagateFlag }
func (g *Global) Checksum(context.Context, *Scope) (string, error) {
	return "", ErrUnresolvedGlobal
}
