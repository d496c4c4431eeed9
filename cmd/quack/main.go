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

// Package main implements the quack CLI: a thin front end over
// pkg/engine/pkg/executor (spec.md §4.7's executor surface restored as a
// command line per SPEC_FULL.md's supplemented CLI feature).
//
// Usage:
//
//	quack run <target> [--mode normal|deps-only|load-only] [--backend false|local|cloud|dev] [--load-from-job <sha>]
//	quack script <name> [args...]
//	quack scripts <name> [<name>...]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/paraflow-hq/quack/internal/cienv"
	"github.com/paraflow-hq/quack/internal/config"
	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/internal/metrics"
	"github.com/paraflow-hq/quack/internal/ui"
	"github.com/paraflow-hq/quack/pkg/cloud"
	"github.com/paraflow-hq/quack/pkg/engine"
	"github.com/paraflow-hq/quack/pkg/executor"
	"github.com/paraflow-hq/quack/pkg/procreg"
	"github.com/paraflow-hq/quack/pkg/spec"
)

// GlobalFlags mirrors the teacher's cmd/cie/main.go GlobalFlags shape.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		jsonOutput = flag.Bool("json", false, "Output in JSON format")
		noColor    = flag.Bool("no-color", false, "Disable color output")
		verbose    = flag.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
		quiet      = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)
	flag.SetInterspersed(false)
	flag.Usage = printUsage

	flag.Parse()
	if *jsonOutput {
		*quiet = true
	}
	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	ui.InitColors(globals.NoColor)

	logger := newLogger(globals)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := procreg.New(logger)
	stop := procreg.WatchSignals(ctx, cancel, reg, logger)
	defer stop()

	command, cmdArgs := args[0], args[1:]
	var err error
	switch command {
	case "run":
		err = runTarget(ctx, cmdArgs, globals, reg, logger)
	case "script":
		err = runScript(ctx, cmdArgs, reg, logger)
	case "scripts":
		err = runScriptsParallel(ctx, cmdArgs, globals, reg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
	reg.TerminateAll()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
}

func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose >= 1:
		level = slog.LevelInfo
	}
	if globals.Quiet {
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func runTarget(ctx context.Context, args []string, globals GlobalFlags, reg *procreg.Registry, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	mode := fs.String("mode", "normal", "normal|deps-only|load-only")
	backend := fs.String("backend", "local", "false|local|cloud|dev")
	loadFromJob := fs.String("load-from-job", "", "resolve target_checksum from this commit SHA's CI-tier commit index")
	metricsAddr := fs.String("metrics-addr", "", "expose /metrics on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.NewSpecError("quack run requires exactly one target name", nil)
	}
	name := fs.Arg(0)

	repoRoot, err := os.Getwd()
	if err != nil {
		return err
	}
	s, err := spec.Load(repoRoot)
	if err != nil {
		return err
	}
	cfg := config.Load()
	if !fs.Changed("backend") {
		*backend = cfg.CacheBackend
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if cfg.MetricsAddr != "" {
		go metrics.Serve(ctx, cfg.MetricsAddr, logger)
	}

	var modeVal engine.Mode
	switch *mode {
	case "normal":
		modeVal = engine.ModeNormal
	case "deps-only":
		modeVal = engine.ModeDepsOnly
	case "load-only":
		modeVal = engine.ModeLoadOnly
	default:
		return errors.NewSpecError(fmt.Sprintf("unknown --mode %q", *mode), nil)
	}

	params := executor.TargetParams{
		Spec:           s,
		RepoRoot:       repoRoot,
		AppName:        s.AppName,
		BackendType:    *backend,
		Mode:           modeVal,
		LoadFromJobSHA: *loadFromJob,
		Environ:        os.Environ(),
		CI:             cienv.Detect(),
		RuntimeCfg:     cfg,
		CloudDriver:    buildCloudDriver(cfg),
		Registry:       reg,
		Logger:         logger,
	}

	outcome, err := executor.ExecuteTarget(ctx, name, params)
	if err != nil {
		if !globals.Quiet {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.Failed(), name)
		}
		return err
	}
	if !globals.Quiet {
		status := ui.Built()
		if outcome == engine.OutcomeHit {
			status = ui.Cached()
		}
		fmt.Printf("%s %s\n", status, name)
	}
	return nil
}

func runScript(ctx context.Context, args []string, reg *procreg.Registry, logger *slog.Logger) error {
	if len(args) == 0 {
		return errors.NewSpecError("quack script requires a script name", nil)
	}
	repoRoot, err := os.Getwd()
	if err != nil {
		return err
	}
	s, err := spec.Load(repoRoot)
	if err != nil {
		return err
	}
	return executor.ExecuteScript(ctx, s, reg, os.Environ(), logger, args[0], args[1:])
}

func runScriptsParallel(ctx context.Context, args []string, globals GlobalFlags, reg *procreg.Registry, logger *slog.Logger) error {
	if len(args) < 2 {
		return errors.NewSpecError("quack scripts requires at least two script names", nil)
	}
	repoRoot, err := os.Getwd()
	if err != nil {
		return err
	}
	s, err := spec.Load(repoRoot)
	if err != nil {
		return err
	}
	showProgress := ui.ProgressEnabled(globals.JSON, globals.Quiet)
	return executor.ExecuteScriptsParallel(ctx, s, reg, os.Environ(), logger, showProgress, args)
}

// buildCloudDriver wires cloud.FakeDriver rooted at QUACK_CLOUD_BUCKET as
// the concrete CloudDriver: a literal S3 (or equivalent) wire client is out
// of scope for this module (SPEC_FULL.md DOMAIN STACK), so a local
// filesystem-backed driver stands in at the one point the CLI needs a
// concrete implementation of the contract pkg/cloud.Driver defines.
func buildCloudDriver(cfg config.RuntimeConfig) cloud.Driver {
	if cfg.CloudBucket == "" {
		return nil
	}
	return cloud.NewFakeDriver(cfg.CloudBucket)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `quack - content-addressed, cache-backed build executor

Usage:
  quack run <target> [--mode normal|deps-only|load-only] [--backend false|local|cloud|dev] [--load-from-job <sha>]
  quack script <name> [args...]
  quack scripts <name> [<name>...]

Global Options:
  --json        Output in JSON format
  --no-color    Disable color output
  -v, --verbose Increase verbosity (-v info, -vv debug)
  -q, --quiet   Suppress non-essential output
`)
}
