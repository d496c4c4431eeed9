// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dependency

import (
	"context"
	"sort"
	"strings"
)

// Variable is the `variable`-kind dependency: every process environment
// variable whose name matches one of Names and none of Excludes
// contributes its value (spec.md §4.1).
type Variable struct {
	Names         []string
	Excludes      []string
	PropagateFlag bool
}

func (v *Variable) Kind() Kind          { return KindVariable }
func (v *Variable) Propagate() bool     { return v.PropagateFlag }
func (v *Variable) DisplayName() string { return "variable:" + joinOrEmpty(v.Names) }

func (v *Variable) Checksum(_ context.Context, scope *Scope) (string, error) {
	includes, err := compileAll(v.Names)
	if err != nil {
		return "", err
	}
	excludes, err := compileAll(v.Excludes)
	if err != nil {
		return "", err
	}

	var pairs [][2]string
	for _, kv := range scope.Environ {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			continue
		}
		name, value := kv[:i], kv[i+1:]
		if !matchesAny(includes, name) || matchesAny(excludes, name) {
			continue
		}
		pairs = append(pairs, [2]string{name, value})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	// Unlike source, an empty match set is not an error: spec.md §8's
	// "must match >=1" boundary case is scoped to source path regexes only.
	return ChecksumPairs(pairs), nil
}
