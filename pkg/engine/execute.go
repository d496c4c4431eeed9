// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/internal/metrics"
	"github.com/paraflow-hq/quack/pkg/procreg"
	"github.com/paraflow-hq/quack/pkg/spec"
)

// Execute runs target through the decide-load-or-build state machine
// (spec.md §4.6). It always starts by materialising the fingerprint, which
// recursively resolves every upstream target's checksum regardless of mode.
func (e *Engine) Execute(ctx context.Context, name string, mode Mode) (Outcome, error) {
	target, ok := e.Spec.Targets[name]
	if !ok {
		return 0, errors.NewSpecError(fmt.Sprintf("unknown target %q", name), nil)
	}
	if _, err := e.Fingerprint(ctx, name); err != nil {
		return 0, err
	}

	switch mode {
	case ModeLoadOnly:
		return e.executeLoadOnly(ctx, target)
	case ModeDepsOnly:
		return e.executeDepsOnly(ctx, target)
	case ModeNormal:
		return e.executeNormal(ctx, target)
	default:
		return 0, errors.NewSpecError(fmt.Sprintf("unknown execution mode %q", mode), nil)
	}
}

// executeLoadOnly never builds: a miss fails the invocation (spec.md §4.6
// table). This is the branch the executor's commit-SHA resolution feeds
// into after assigning target.checksum_value from the commit index.
func (e *Engine) executeLoadOnly(ctx context.Context, target *spec.Target) (Outcome, error) {
	exists, err := e.Backend.Exists(ctx, target)
	if err != nil {
		return 0, err
	}
	if !exists {
		csum, _ := target.Checksum()
		return 0, fmt.Errorf("load-only: no cache entry for target %s at checksum %s", target.Name, csum)
	}
	if err := e.Backend.Load(ctx, target); err != nil {
		return 0, err
	}
	return OutcomeHit, nil
}

// executeDepsOnly recurses into upstream targets in the same mode and never
// builds or loads this target itself (spec.md §4.6 table: "same (load not
// invoked)"). This resolves the whole transitive graph's fingerprints and
// validates it without touching the cache or running any build command —
// see DESIGN.md for why upstream recursion stays in DEPS_ONLY rather than
// promoting to NORMAL.
func (e *Engine) executeDepsOnly(ctx context.Context, target *spec.Target) (Outcome, error) {
	for _, upstream := range upstreamTargetNames(target) {
		if _, err := e.Execute(ctx, upstream, ModeDepsOnly); err != nil {
			return 0, err
		}
	}
	return OutcomeDepsOnly, nil
}

// executeNormal: a cache hit loads and skips the build entirely. A miss
// recurses into upstream targets (fully resolved via NORMAL, so their
// output files actually exist on disk before this target's build command
// runs), builds, saves, then loads from cache — NORMAL always finishes by
// loading from cache, even immediately after a save, so a fresh build and a
// cache-hit restore produce outputs through the identical archive→extract
// path (spec.md §4.6 "key rationale").
func (e *Engine) executeNormal(ctx context.Context, target *spec.Target) (Outcome, error) {
	exists, err := e.Backend.Exists(ctx, target)
	if err != nil {
		return 0, err
	}
	backend := backendLabel(e.Backend)
	if exists {
		if err := e.Backend.Load(ctx, target); err != nil {
			return 0, err
		}
		csum, _ := target.Checksum()
		e.Logger.Info("target.cache.hit", "target", target.Name, "checksum", csum, "backend", backend)
		metrics.CacheHits.WithLabelValues(backend, target.Name).Inc()
		return OutcomeHit, nil
	}

	csum, _ := target.Checksum()
	e.Logger.Info("target.cache.miss", "target", target.Name, "checksum", csum, "backend", backend)
	metrics.CacheMisses.WithLabelValues(backend, target.Name).Inc()

	for _, upstream := range upstreamTargetNames(target) {
		if _, err := e.Execute(ctx, upstream, ModeNormal); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	if err := e.runBuild(ctx, target); err != nil {
		return 0, err
	}
	metrics.BuildDuration.WithLabelValues(target.Name).Observe(time.Since(start).Seconds())

	if err := e.Backend.Save(ctx, target); err != nil {
		return 0, errors.NewCloudError(fmt.Sprintf("saving target %s to cache", target.Name), err)
	}
	if err := e.Backend.Load(ctx, target); err != nil {
		return 0, err
	}
	return OutcomeBuilt, nil
}

func (e *Engine) runBuild(ctx context.Context, target *spec.Target) error {
	build := target.Build
	result, err := procreg.Run(ctx, e.Registry, build.ShellCmd, build.Cwd(), build.Env(e.Environ))
	if err != nil {
		return errors.NewBuildError(target.Name, result.ExitCode, err)
	}
	return nil
}
