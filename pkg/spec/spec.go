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

// Package spec loads, validates, and post-processes a quack.yaml document
// tree into the frozen in-memory model spec.md §3/§4.4 describes: a root
// Spec holding every Target and Script reachable through `include`, with
// global dependencies resolved and output inheritance expanded before any
// fingerprint is computed. Grounded on the teacher's `cmd/cie/config.go`
// yaml-loading idiom, generalised from a single flat config file to a
// recursive include tree.
package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/pkg/dependency"
)

const specFileName = "quack.yaml"

var (
	appNameRe    = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
	targetNameRe = regexp.MustCompile(`^[a-z0-9\-]+:[a-z0-9\-:]+$`)
	scriptNameRe = regexp.MustCompile(`^[a-z0-9\-_.]{1,32}$`)
	anchoredRe   = regexp.MustCompile(`^\^.*\$$`)
)

// Outputs is a target's declared output-path set (spec.md §3: "Outputs.paths
// is explicitly a set" — duplicate declared paths collapse silently).
type Outputs struct {
	Paths   map[string]struct{}
	Inherit bool
}

// SortedPaths returns Paths in a stable order, for archiving and logging.
func (o Outputs) SortedPaths() []string {
	out := make([]string, 0, len(o.Paths))
	for p := range o.Paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Target is spec.md §3's Target record. ChecksumValue is memoised after
// first computation by pkg/engine, or assigned exactly once externally when
// the engine resolves a fingerprint by commit SHA (spec.md §4.6).
type Target struct {
	Name         string
	Description  string
	Dependencies []dependency.Dependency
	Outputs      Outputs
	Build        dependency.Command

	checksum    string
	checksumSet bool
}

// CachePath is `<name>/<checksum[:2]>/<checksum[2:]>` (spec.md §3). Callers
// must only invoke this once a checksum has been assigned.
func (t *Target) CachePath() (string, error) {
	if !t.checksumSet {
		return "", fmt.Errorf("target %s: checksum not yet computed", t.Name)
	}
	return filepath.Join(t.Name, t.checksum[:2], t.checksum[2:]), nil
}

// ArchiveFilename is `<name>.tar.zst` with colons replaced by `__` for
// filesystem (and cloud object-key segment) safety (SPEC_FULL.md §3
// supplement, grounded on original_source/src/quack/models/target.py).
func (t *Target) ArchiveFilename() string {
	return sanitizeName(t.Name) + ".tar.zst"
}

// SafeName is t.Name with colons substituted, for any other on-disk or
// object-key path segment that needs the same filesystem-safety treatment
// as ArchiveFilename (e.g. the commit-index object key, SPEC_FULL.md §4.6).
func (t *Target) SafeName() string {
	return sanitizeName(t.Name)
}

func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == ':' {
			out = append(out, '_', '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// Checksum returns the memoised checksum_value and whether it has been set.
func (t *Target) Checksum() (string, bool) {
	return t.checksum, t.checksumSet
}

// SetChecksum assigns checksum_value, either the first (and normally only)
// time pkg/engine finishes computing it, or exactly once more when the
// engine overrides it via LOAD_ONLY-by-commit-SHA (spec.md §3 Lifecycles).
func (t *Target) SetChecksum(csum string) {
	t.checksum = csum
	t.checksumSet = true
}

// Script is spec.md §3's Script record: local to the sub-spec that declared
// it — an included sub-spec's scripts are never exposed to the root.
type Script struct {
	Name        string
	Description string
	Command     dependency.Command
}

// Spec is the frozen, fully post-processed document (spec.md §3
// Lifecycles): built once per invocation, mutated only during loading and
// post-processing, then read-only.
type Spec struct {
	AppName            string
	GlobalDependencies []namedDependency
	Targets            map[string]*Target
	Scripts            map[string]*Script
}

type namedDependency struct {
	Name string
	Dep  dependency.Dependency
}

// Load reads the quack.yaml at root (and every sub-spec reachable through
// `include`), validates structure, resolves global dependencies, and
// expands output inheritance (spec.md §4.4).
func Load(root string) (*Spec, error) {
	s := &Spec{Targets: map[string]*Target{}, Scripts: map[string]*Script{}}
	globalsByName := map[string]bool{}

	if err := loadInto(s, root, true, globalsByName); err != nil {
		return nil, err
	}
	if s.AppName == "" {
		return nil, errors.NewSpecError("quack.yaml: app_name is required at the root spec", nil)
	}
	if err := postProcess(s); err != nil {
		return nil, err
	}
	return s, nil
}

func loadInto(s *Spec, dir string, isRoot bool, globalsByName map[string]bool) error {
	content, err := os.ReadFile(filepath.Join(dir, specFileName)) //nolint:gosec // G304: dir is a project-controlled include path
	if err != nil {
		return errors.NewSpecError(fmt.Sprintf("read %s", filepath.Join(dir, specFileName)), err)
	}

	ws, err := parseYAML(content)
	if err != nil {
		return err
	}
	if isRoot {
		s.AppName = ws.AppName
		if s.AppName != "" && !appNameRe.MatchString(s.AppName) {
			return errors.NewSpecError(fmt.Sprintf("invalid app_name %q", s.AppName), nil)
		}
	}

	for _, wg := range ws.GlobalDependencies {
		if globalsByName[wg.Name] {
			return errors.NewSpecError(fmt.Sprintf("duplicate global dependency name %q", wg.Name), nil)
		}
		dep, err := wg.toDependency(dir)
		if err != nil {
			return err
		}
		if err := validateDependencyFields(dep); err != nil {
			return err
		}
		globalsByName[wg.Name] = true
		s.GlobalDependencies = append(s.GlobalDependencies, namedDependency{Name: wg.Name, Dep: dep})
	}

	for _, wt := range ws.Targets {
		if !targetNameRe.MatchString(wt.Name) {
			return errors.NewSpecError(fmt.Sprintf("invalid target name %q", wt.Name), nil)
		}
		if len(wt.Description) > 255 {
			return errors.NewSpecError(fmt.Sprintf("target %s: description exceeds 255 characters", wt.Name), nil)
		}
		if _, exists := s.Targets[wt.Name]; exists {
			return errors.NewSpecError(fmt.Sprintf("duplicate target name %q", wt.Name), nil)
		}
		if _, exists := s.Scripts[wt.Name]; exists {
			return errors.NewSpecError(fmt.Sprintf("name %q used by both a target and a script", wt.Name), nil)
		}

		deps := make([]dependency.Dependency, len(wt.Dependencies))
		for i, wd := range wt.Dependencies {
			dep, err := wd.toDependency(dir)
			if err != nil {
				return err
			}
			if err := validateDependencyFields(dep); err != nil {
				return err
			}
			deps[i] = dep
		}

		paths := make(map[string]struct{}, len(wt.Outputs.Paths))
		for _, p := range wt.Outputs.Paths {
			paths[p] = struct{}{}
		}

		s.Targets[wt.Name] = &Target{
			Name:         wt.Name,
			Description:  wt.Description,
			Dependencies: deps,
			Outputs:      Outputs{Paths: paths, Inherit: wt.Outputs.Inherit},
			Build:        wt.Operations.Build.toCommand(dir),
		}
	}

	// Scripts are local to the sub-spec that declared them (spec.md §3): an
	// included sub-spec's scripts are never exposed to the root invocation.
	if isRoot {
		for _, wscr := range ws.Scripts {
			if !scriptNameRe.MatchString(wscr.Name) {
				return errors.NewSpecError(fmt.Sprintf("invalid script name %q", wscr.Name), nil)
			}
			if _, exists := s.Targets[wscr.Name]; exists {
				return errors.NewSpecError(fmt.Sprintf("name %q used by both a target and a script", wscr.Name), nil)
			}
			if _, exists := s.Scripts[wscr.Name]; exists {
				return errors.NewSpecError(fmt.Sprintf("duplicate script name %q", wscr.Name), nil)
			}
			s.Scripts[wscr.Name] = &Script{
				Name:        wscr.Name,
				Description: wscr.Description,
				Command:     wscr.Command.toCommand(dir),
			}
		}
	}

	for _, inc := range ws.Include {
		incDir := filepath.Join(dir, inc)
		if err := loadInto(s, incDir, false, globalsByName); err != nil {
			return err
		}
	}
	return nil
}

// validateDependencyFields enforces spec.md §6's "every regex for source
// paths and variable names must start with ^ and end with $" rule.
// spec.md §4.1's "every source regex must match at least one real file"
// rule is enforced later, in dependency.Source.MatchedFiles, because it
// requires the git file listing this package does not have access to at
// load time; variable regexes carry no such requirement (spec.md §4.1
// only states it for source).
func validateDependencyFields(dep dependency.Dependency) error {
	var patterns []string
	switch d := dep.(type) {
	case *dependency.Source:
		patterns = append(append([]string{}, d.Paths...), d.Excludes...)
	case *dependency.Variable:
		patterns = append(append([]string{}, d.Names...), d.Excludes...)
	default:
		return nil
	}
	for _, p := range patterns {
		if !anchoredRe.MatchString(p) {
			return errors.NewSpecError(fmt.Sprintf("regex %q must start with ^ and end with $", p), nil)
		}
	}
	return nil
}

// postProcess implements spec.md §4.4's three-step post-processing pass,
// run exactly once on the fully-merged root spec before any fingerprint is
// computed.
func postProcess(s *Spec) error {
	globalByName := make(map[string]dependency.Dependency, len(s.GlobalDependencies))
	for _, g := range s.GlobalDependencies {
		globalByName[g.Name] = g.Dep
	}

	// Step 1: substitute every global-kind dependency with its blueprint.
	for name, t := range s.Targets {
		resolved := make([]dependency.Dependency, len(t.Dependencies))
		for i, d := range t.Dependencies {
			if d.Kind() != dependency.KindGlobal {
				resolved[i] = d
				continue
			}
			g, ok := d.(*dependency.Global)
			if !ok {
				resolved[i] = d
				continue
			}
			blueprint, found := globalByName[g.Name]
			if !found {
				return errors.NewSpecError(fmt.Sprintf("target %s: unresolved global dependency %q", name, g.Name), nil)
			}
			resolved[i] = blueprint
		}
		t.Dependencies = resolved
	}

	// Step 2: prepend every propagate=true global dependency to every
	// target's list, preserving the global_dependencies declaration order.
	// A target that already references that global by name keeps it at its
	// own position instead of getting a second copy.
	var propagating []dependency.Dependency
	for _, g := range s.GlobalDependencies {
		if g.Dep.Propagate() {
			propagating = append(propagating, g.Dep)
		}
	}
	if len(propagating) > 0 {
		for _, t := range s.Targets {
			merged := make([]dependency.Dependency, 0, len(propagating)+len(t.Dependencies))
			for _, p := range propagating {
				referenced := false
				for _, d := range t.Dependencies {
					if d == p {
						referenced = true
						break
					}
				}
				if !referenced {
					merged = append(merged, p)
				}
			}
			merged = append(merged, t.Dependencies...)
			t.Dependencies = merged
		}
	}

	// Step 3: expand output inheritance as a DAG fixpoint.
	return expandOutputInheritance(s)
}

func expandOutputInheritance(s *Spec) error {
	resolved := map[string]map[string]struct{}{}
	visiting := map[string]bool{}

	var resolve func(name string) (map[string]struct{}, error)
	resolve = func(name string) (map[string]struct{}, error) {
		if r, ok := resolved[name]; ok {
			return r, nil
		}
		if visiting[name] {
			return nil, errors.NewSpecError(fmt.Sprintf("cycle detected in target dependency graph at %q", name), nil)
		}
		t, ok := s.Targets[name]
		if !ok {
			return nil, errors.NewSpecError(fmt.Sprintf("unresolved target dependency %q", name), nil)
		}
		visiting[name] = true

		union := make(map[string]struct{}, len(t.Outputs.Paths))
		for p := range t.Outputs.Paths {
			union[p] = struct{}{}
		}
		if t.Outputs.Inherit {
			for _, d := range t.Dependencies {
				td, ok := d.(*dependency.TargetDep)
				if !ok {
					continue
				}
				upstream, err := resolve(td.Name)
				if err != nil {
					return nil, err
				}
				for p := range upstream {
					union[p] = struct{}{}
				}
			}
		}
		visiting[name] = false
		resolved[name] = union
		return union, nil
	}

	names := make([]string, 0, len(s.Targets))
	for name := range s.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		union, err := resolve(name)
		if err != nil {
			return err
		}
		s.Targets[name].Outputs.Paths = union
	}
	return nil
}
