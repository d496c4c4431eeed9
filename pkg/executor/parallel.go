// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/pkg/procreg"
	"github.com/paraflow-hq/quack/pkg/spec"
)

// ExecuteScriptsParallel runs every named script on a worker pool sized to
// runtime.NumCPU() (spec.md §4.7, grounded on the teacher's
// pkg/ingestion/local_pipeline.go parseFilesParallel jobs-channel/
// worker-pool/result-channel shape). Names must all resolve to scripts —
// a target name or an unknown name rejects the whole call before any
// script runs. The first failing worker poisons the pool: its sibling
// workers are cancelled and every registered subprocess is terminated
// (spec.md §5).
func ExecuteScriptsParallel(ctx context.Context, s *spec.Spec, reg *procreg.Registry, environ []string, logger *slog.Logger, showProgress bool, names []string) error {
	if logger == nil {
		logger = slog.Default()
	}
	var unknown, targetNames []string
	scripts := make([]*spec.Script, 0, len(names))
	for _, name := range names {
		switch {
		case s.Scripts[name] != nil:
			scripts = append(scripts, s.Scripts[name])
		case s.Targets[name] != nil:
			targetNames = append(targetNames, name)
		default:
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return errors.NewSpecError(fmt.Sprintf("unknown script or target name(s): %v", unknown), nil)
	}
	if len(targetNames) > 0 {
		return errors.NewSpecError(fmt.Sprintf("execute_scripts_parallel only runs scripts, not targets: %v", targetNames), nil)
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > len(scripts) {
		numWorkers = len(scripts)
	}
	if numWorkers < 1 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan *spec.Script, len(scripts))
	for _, script := range scripts {
		jobs <- script
	}
	close(jobs)

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(int64(len(scripts)), "running scripts")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	var failed string
	barBump := func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for script := range jobs {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				err := runScript(runCtx, reg, environ, logger, script, nil)
				barBump()
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
						failed = script.Name
					}
					mu.Unlock()
					cancel()
					reg.TerminateAll()
					return
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		logger.Error("scripts.parallel.failed", "script", failed, "err", firstErr)
		return firstErr
	}
	return nil
}
