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

// Package gitfiles memoises the single git ls-files invocation spec.md
// §4.1 requires per process: source dependencies match against this list
// rather than walking the filesystem directly.
package gitfiles

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Lister lists the files git considers "known" for this invocation: all
// tracked files in CI mode, or tracked-plus-untracked-but-not-ignored files
// on a developer machine.
type Lister struct {
	repoRoot string
	ci       bool

	once  sync.Once
	files []string
	err   error
}

// NewLister creates a Lister rooted at repoRoot. ci selects which git
// command produces the file list (spec.md §4.1).
func NewLister(repoRoot string, ci bool) *Lister {
	return &Lister{repoRoot: repoRoot, ci: ci}
}

// Files returns the memoised file list, running git exactly once across
// the lifetime of this Lister regardless of how many dependencies call it.
func (l *Lister) Files(ctx context.Context) ([]string, error) {
	l.once.Do(func() {
		args := []string{"ls-files"}
		if !l.ci {
			args = append(args, "-co", "--exclude-standard")
		}
		l.files, l.err = l.run(ctx, args...)
	})
	return l.files, l.err
}

func (l *Lister) run(ctx context.Context, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = l.repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return nil, fmt.Errorf("git %s failed: %s", args[0], stderrStr)
		}
		return nil, fmt.Errorf("git %s failed: %w", args[0], err)
	}

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	return lines, nil
}
