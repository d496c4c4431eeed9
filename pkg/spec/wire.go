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

package spec

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/pkg/dependency"
)

// wireSpec mirrors quack.yaml's on-disk shape (spec.md §6) before any
// post-processing. Field names match the teacher's `cmd/cie/config.go`
// convention of yaml-tagging every field explicitly rather than relying on
// yaml.v3's default lower-casing.
type wireSpec struct {
	AppName            string                 `yaml:"app_name"`
	Include            []string               `yaml:"include"`
	GlobalDependencies []wireGlobalDependency `yaml:"global_dependencies"`
	Targets            []wireTarget           `yaml:"targets"`
	Scripts            []wireScript           `yaml:"scripts"`
}

type wireGlobalDependency struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type"`
	Propagate bool          `yaml:"propagate"`
	Paths     []string      `yaml:"paths"`
	Excludes  []string      `yaml:"excludes"`
	Names     []string      `yaml:"names"`
	Commands  []wireCommand `yaml:"commands"`
}

type wireDependency struct {
	Type      string        `yaml:"type"`
	Propagate bool          `yaml:"propagate"`
	Paths     []string      `yaml:"paths"`
	Excludes  []string      `yaml:"excludes"`
	Names     []string      `yaml:"names"`
	Commands  []wireCommand `yaml:"commands"`
	Name      string        `yaml:"name"` // target-kind: upstream target name; global-kind: blueprint name
}

// wireCommand accepts either a bare shell string or the expanded
// {command, path?, variables?} mapping (spec.md §6: "command is either a
// shell string or {command, path?, variables?}").
type wireCommand struct {
	ShellCmd  string
	Path      string
	Variables map[string]string
}

func (c *wireCommand) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.ShellCmd = value.Value
		return nil
	}
	var expanded struct {
		Command   string            `yaml:"command"`
		Path      string            `yaml:"path"`
		Variables map[string]string `yaml:"variables"`
	}
	if err := value.Decode(&expanded); err != nil {
		return err
	}
	c.ShellCmd = expanded.Command
	c.Path = expanded.Path
	c.Variables = expanded.Variables
	return nil
}

func (c wireCommand) toCommand(basePath string) dependency.Command {
	return dependency.Command{
		ShellCmd:  c.ShellCmd,
		BasePath:  basePath,
		Path:      c.Path,
		Variables: c.Variables,
	}
}

type wireOutputs struct {
	Paths   []string `yaml:"paths"`
	Inherit bool     `yaml:"inherit"`
}

type wireOperations struct {
	Build wireCommand `yaml:"build"`
}

type wireTarget struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Dependencies []wireDependency `yaml:"dependencies"`
	Outputs      wireOutputs      `yaml:"outputs"`
	Operations   wireOperations   `yaml:"operations"`
}

type wireScript struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Command     wireCommand `yaml:"command"`
}

func (d wireDependency) toDependency(basePath string) (dependency.Dependency, error) {
	switch dependency.Kind(d.Type) {
	case dependency.KindSource:
		return &dependency.Source{Paths: d.Paths, Excludes: d.Excludes, PropagateFlag: d.Propagate}, nil
	case dependency.KindCommand:
		cmds := make([]dependency.Command, len(d.Commands))
		for i, c := range d.Commands {
			cmds[i] = c.toCommand(basePath)
		}
		return &dependency.CommandDep{Commands: cmds, PropagateFlag: d.Propagate}, nil
	case dependency.KindVariable:
		return &dependency.Variable{Names: d.Names, Excludes: d.Excludes, PropagateFlag: d.Propagate}, nil
	case dependency.KindTarget:
		if d.Name == "" {
			return nil, errors.NewSpecError("target-kind dependency missing name", nil)
		}
		return &dependency.TargetDep{Name: d.Name, PropagateFlag: d.Propagate}, nil
	case dependency.KindGlobal:
		if d.Name == "" {
			return nil, errors.NewSpecError("global-kind dependency missing name", nil)
		}
		return &dependency.Global{Name: d.Name, PropagateFlag: d.Propagate}, nil
	default:
		return nil, errors.NewSpecError(fmt.Sprintf("unknown dependency type %q", d.Type), nil)
	}
}

func (g wireGlobalDependency) toDependency(basePath string) (dependency.Dependency, error) {
	// A global dependency blueprint is itself one of the four real variants
	// (never "global" — that would be a self-reference), so the conversion
	// is shared with per-target dependency entries.
	asDep := wireDependency{
		Type:      g.Type,
		Propagate: g.Propagate,
		Paths:     g.Paths,
		Excludes:  g.Excludes,
		Names:     g.Names,
		Commands:  g.Commands,
	}
	return asDep.toDependency(basePath)
}

func parseYAML(content []byte) (*wireSpec, error) {
	var ws wireSpec
	if err := yaml.Unmarshal(content, &ws); err != nil {
		return nil, errors.NewSpecError("malformed quack.yaml", err)
	}
	return &ws, nil
}
