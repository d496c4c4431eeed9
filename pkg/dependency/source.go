// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dependency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/paraflow-hq/quack/internal/errors"
)

// Source is the `source`-kind dependency: every file git knows about whose
// path matches one of Paths and none of Excludes contributes its content
// hash (spec.md §4.1).
type Source struct {
	Paths         []string
	Excludes      []string
	PropagateFlag bool
}

func (s *Source) Kind() Kind          { return KindSource }
func (s *Source) Propagate() bool     { return s.PropagateFlag }
func (s *Source) DisplayName() string { return "source:" + joinOrEmpty(s.Paths) }

func joinOrEmpty(items []string) string {
	if len(items) == 0 {
		return "<none>"
	}
	out := items[0]
	for _, it := range items[1:] {
		out += "," + it
	}
	return out
}

// MatchedFiles returns the sorted set of repo-relative paths this
// dependency matches. Every regex in Paths and Excludes must match at
// least one file in scope; a regex that matches nothing makes the spec
// invalid rather than silently contributing an empty set (spec.md §4.1,
// §8's "source regex not matching any file -> spec error, not empty set").
func (s *Source) MatchedFiles(ctx context.Context, scope *Scope) ([]string, error) {
	files, err := scope.Lister.Files(ctx)
	if err != nil {
		return nil, fmt.Errorf("list git files: %w", err)
	}

	includes, err := compileAll(s.Paths)
	if err != nil {
		return nil, err
	}
	excludes, err := compileAll(s.Excludes)
	if err != nil {
		return nil, err
	}

	includeHits := make([]bool, len(includes))
	excludeHits := make([]bool, len(excludes))

	var matched []string
	for _, f := range files {
		included := false
		for i, re := range includes {
			if re.MatchString(f) {
				includeHits[i] = true
				included = true
			}
		}
		if !included {
			continue
		}
		excluded := false
		for i, re := range excludes {
			if re.MatchString(f) {
				excludeHits[i] = true
				excluded = true
			}
		}
		if excluded {
			continue
		}
		matched = append(matched, f)
	}
	sort.Strings(matched)

	for i, hit := range includeHits {
		if !hit {
			return nil, errors.NewSpecError(fmt.Sprintf("source regex %q matched no files", s.Paths[i]), nil)
		}
	}
	for i, hit := range excludeHits {
		if !hit {
			return nil, errors.NewSpecError(fmt.Sprintf("source exclude regex %q matched no files", s.Excludes[i]), nil)
		}
	}

	return matched, nil
}

func (s *Source) Checksum(ctx context.Context, scope *Scope) (string, error) {
	matched, err := s.MatchedFiles(ctx, scope)
	if err != nil {
		return "", err
	}

	pairs := make([][2]string, len(matched))
	for i, rel := range matched {
		hash, err := hashFile(filepath.Join(scope.RepoRoot, rel))
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", rel, err)
		}
		pairs[i] = [2]string{rel, hash}
	}
	// Already sorted by MatchedFiles; re-sort defensively since the
	// checksum's determinism invariant must hold regardless of caller order.
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return ChecksumPairs(pairs), nil
}

func hashFile(path string) (string, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path resolved from repo-relative git-listed files
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", p, err)
		}
		out[i] = re
	}
	return out, nil
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
