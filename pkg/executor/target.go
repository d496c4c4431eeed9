// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/paraflow-hq/quack/internal/cienv"
	"github.com/paraflow-hq/quack/internal/config"
	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/pkg/cache"
	"github.com/paraflow-hq/quack/pkg/cloud"
	"github.com/paraflow-hq/quack/pkg/engine"
	"github.com/paraflow-hq/quack/pkg/procreg"
	"github.com/paraflow-hq/quack/pkg/spec"
)

func hostname() (string, error) { return os.Hostname() }

// TargetParams is everything ExecuteTarget needs beyond the target name
// itself: spec.md §4.7's execute_target(app_name, name, backend_type, mode,
// config) collapsed into one struct since Go favours named fields over a
// long positional signature.
type TargetParams struct {
	Spec     *spec.Spec
	RepoRoot string
	AppName  string

	// BackendType is one of "false", "local", "cloud", "dev" (spec.md §4.5).
	BackendType string
	Mode        engine.Mode

	// LoadFromJobSHA, when non-empty, resolves target_checksum from the
	// CI-tier commit-index object before executing in ModeLoadOnly
	// (spec.md §4.6 "Loading by commit SHA").
	LoadFromJobSHA string

	Environ     []string
	CI          cienv.Info
	RuntimeCfg  config.RuntimeConfig
	CloudDriver cloud.Driver
	Logger      *slog.Logger

	// Registry is the process-wide subprocess registry shared with script
	// execution, so a top-level signal handler's TerminateAll reaches target
	// builds too. Nil gets its own private Registry (engine.New's default).
	Registry *procreg.Registry
}

// ExecuteTarget selects the cache backend, optionally resolves the target's
// checksum by commit SHA, invokes the target engine, and on a successful
// NORMAL build in CI performs commit-index bookkeeping (spec.md §4.7,
// §4.6 "Post-execution commit bookkeeping"). The returned Outcome tells the
// caller whether the target was served from cache or actually built.
func ExecuteTarget(ctx context.Context, name string, p TargetParams) (engine.Outcome, error) {
	target, ok := p.Spec.Targets[name]
	if !ok {
		return 0, errors.NewSpecError(fmt.Sprintf("unknown target %q", name), nil)
	}

	runtime := cache.Runtime{CommitSHA: p.CI.CommitSHA}
	if h, err := hostname(); err == nil {
		runtime.Hostname = h
	}

	backend, ciTier, err := buildBackend(p.BackendType, p.AppName, runtime, p.CloudDriver, p.RuntimeCfg, p.Logger)
	if err != nil {
		return 0, err
	}

	if p.LoadFromJobSHA != "" {
		if ciTier == nil {
			return 0, errors.NewCommitIndexError("--load-from-job requires a cloud driver to resolve the commit index", nil)
		}
		csum, err := ciTier.ResolveChecksumByCommit(ctx, target, p.LoadFromJobSHA)
		if err != nil {
			return 0, errors.NewCommitIndexError(fmt.Sprintf("resolving target %s at commit %s", name, p.LoadFromJobSHA), err)
		}
		target.SetChecksum(csum)
		p.Mode = engine.ModeLoadOnly
	}

	e := engine.New(p.Spec, backend, p.RepoRoot, p.CI.IsCI, p.Environ, p.Registry, p.Logger)
	outcome, err := e.Execute(ctx, name, p.Mode)
	if err != nil {
		return 0, err
	}

	if p.Mode == engine.ModeNormal && p.RuntimeCfg.SaveForLoad && p.CI.IsCI && p.CI.CommitSHA != "" && ciTier != nil {
		if err := ciTier.SaveForLoad(ctx, target, p.CI.CommitSHA); err != nil {
			return 0, errors.NewCloudError(fmt.Sprintf("commit-index bookkeeping for target %s", name), err)
		}
	}
	return outcome, nil
}

// buildBackend constructs the selected cache.Backend. It also returns the
// CI-tier *cache.Cloud (".quack-cache/<app_name>") whenever a cloud driver
// is configured, independent of which backend was selected, since
// commit-SHA resolution always consults the CI tier (spec.md §4.6) even
// when the invocation otherwise runs against "local" or "dev".
func buildBackend(backendType, appName string, runtime cache.Runtime, driver cloud.Driver, cfg config.RuntimeConfig, logger *slog.Logger) (cache.Backend, *cache.Cloud, error) {
	baseDir, err := cache.DefaultBaseDir(appName)
	if err != nil {
		return nil, nil, err
	}
	l1 := cache.NewLocal(baseDir, runtime, logger)

	var ciTier *cache.Cloud
	if driver != nil {
		ciTier = cache.NewCloud(driver, l1, path.Join(cfg.CloudPrefix, appName), logger)
	}

	switch backendType {
	case "", "false":
		return cache.NewRaw(), ciTier, nil
	case "local":
		return l1, ciTier, nil
	case "cloud":
		if driver == nil {
			return nil, nil, errors.NewCloudError("cloud backend selected but no cloud driver is configured", nil)
		}
		return ciTier, ciTier, nil
	case "dev":
		if driver == nil {
			return nil, nil, errors.NewCloudError("dev backend selected but no cloud driver is configured", nil)
		}
		devTier := cache.NewCloud(driver, l1, path.Join(".quack-cache-dev", appName), logger)
		return cache.NewDev(devTier, ciTier, logger), ciTier, nil
	default:
		return nil, nil, errors.NewSpecError(fmt.Sprintf("unknown cache backend %q", backendType), nil)
	}
}
