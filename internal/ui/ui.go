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

// Package ui centralizes terminal presentation: status-word coloring and
// the decision of whether color/progress bars should be emitted at all.
package ui

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	hit    = color.New(color.FgGreen, color.Bold)
	built  = color.New(color.FgCyan, color.Bold)
	failed = color.New(color.FgRed, color.Bold)
)

// InitColors enables or disables colored output. It is called once from
// main() after flags are parsed; forceDisable wins over TTY detection.
func InitColors(forceDisable bool) {
	if forceDisable || os.Getenv("NO_COLOR") != "" || !IsTTY(os.Stdout) {
		color.NoColor = true
	}
}

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Cached returns the status word for a cache hit, colored when enabled.
func Cached() string { return hit.Sprint("CACHED") }

// Built returns the status word for a fresh build, colored when enabled.
func Built() string { return built.Sprint("BUILT") }

// Failed returns the status word for a failed build, colored when enabled.
func Failed() string { return failed.Sprint("FAILED") }

// ProgressEnabled reports whether progress bars should render: disabled
// under --json, --quiet, NO_COLOR, or a non-interactive stdout.
func ProgressEnabled(jsonMode, quiet bool) bool {
	if jsonMode || quiet || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return IsTTY(os.Stdout)
}
