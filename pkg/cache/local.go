// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/paraflow-hq/quack/pkg/archiver"
	"github.com/paraflow-hq/quack/pkg/spec"
)

// Local is the `local` backend (spec.md §4.5): rooted at
// <XDG_CACHE_HOME>/quack/<app_name>, existence defined by presence of the
// metadata file alongside the archive.
type Local struct {
	BaseDir     string
	ExpireAfter time.Duration
	Runtime     Runtime
	Logger      *slog.Logger

	showProgress bool
}

// NewLocal roots a Local backend at baseDir (the caller resolves XDG_CACHE_HOME
// and appends "quack/<app_name>" — kept explicit here rather than read from
// the environment deep inside the backend, matching the teacher's
// constructor-injected-config idiom in pkg/storage/embedded.go).
func NewLocal(baseDir string, runtime Runtime, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{BaseDir: baseDir, ExpireAfter: ExpireDays, Runtime: runtime, Logger: logger}
}

// SetProgress enables the archiver's progress bar during pack/extract, for
// interactive terminal invocations (internal/ui decides when that's
// appropriate).
func (l *Local) SetProgress(enabled bool) { l.showProgress = enabled }

// DefaultBaseDir resolves <XDG_CACHE_HOME>/quack/<app_name>, falling back to
// ~/.cache when XDG_CACHE_HOME is unset (spec.md §6).
func DefaultBaseDir(appName string) (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "quack", appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "quack", appName), nil
}

func (l *Local) entryDir(target *spec.Target) (string, error) {
	cachePath, err := target.CachePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(l.BaseDir, cachePath), nil
}

func (l *Local) metadataPath(target *spec.Target) (string, error) {
	dir, err := l.entryDir(target)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, MetadataFilename), nil
}

func (l *Local) archivePath(target *spec.Target) (string, error) {
	dir, err := l.entryDir(target)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, target.ArchiveFilename()), nil
}

func (l *Local) Exists(_ context.Context, target *spec.Target) (bool, error) {
	mp, err := l.metadataPath(target)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(mp)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *Local) Load(ctx context.Context, target *spec.Target) error {
	ap, err := l.archivePath(target)
	if err != nil {
		return err
	}
	l.Logger.Debug("cache.local.load", "target", target.Name, "archive", ap)
	return archiver.Extract(ctx, ap, l.showProgress)
}

func (l *Local) Save(ctx context.Context, target *spec.Target) error {
	dir, err := l.entryDir(target)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache entry dir: %w", err)
	}

	ap, err := l.archivePath(target)
	if err != nil {
		return err
	}
	// Archive first, then metadata: "cache exists" is defined by metadata
	// presence, so a concurrent reader sees either no cache or a complete
	// one (spec.md §5 cache-coherence policy).
	if err := archiver.Pack(ctx, target.Outputs.SortedPaths(), ap, l.showProgress); err != nil {
		return fmt.Errorf("pack target %s outputs: %w", target.Name, err)
	}

	// FileChecksum is the packed archive's own SHA-256, distinct from
	// TargetChecksum: it detects a corrupt archive on a later load, it does
	// not identify the cache entry.
	fileSum, err := hashFile(ap)
	if err != nil {
		return fmt.Errorf("hash packed archive: %w", err)
	}

	csum, _ := target.Checksum()
	meta := Metadata{
		TargetChecksum: csum,
		FileChecksum:   fileSum,
		Hostname:       l.Runtime.Hostname,
		CommitSHA:      l.Runtime.CommitSHA,
		CreatedAt:      timeNow(),
	}
	mp, err := l.metadataPath(target)
	if err != nil {
		return err
	}
	if err := writeMetadataAtomic(mp, meta); err != nil {
		return fmt.Errorf("write cache metadata: %w", err)
	}
	l.Logger.Debug("cache.local.save", "target", target.Name, "archive", ap)
	return nil
}

// Touch re-uploads/rewrites the metadata only, refreshing its modification
// time for LRU expiry purposes without touching the archive (spec.md §5).
func (l *Local) Touch(target *spec.Target, meta Metadata) error {
	mp, err := l.metadataPath(target)
	if err != nil {
		return err
	}
	return writeMetadataAtomic(mp, meta)
}

func (l *Local) ReadMetadata(target *spec.Target) (Metadata, error) {
	mp, err := l.metadataPath(target)
	if err != nil {
		return Metadata{}, err
	}
	content, err := os.ReadFile(mp) //nolint:gosec // G304: mp is derived from our own cache layout
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(content, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// ensureDir creates the parent directory of a file path, for callers (like
// the Cloud backend) that write into the Local tier's layout directly.
func ensureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o750)
}

// hashFile returns the lowercase hex SHA-256 of path's contents, shared by
// Local.Save (computing FileChecksum) and Cloud's archive integrity check.
func hashFile(path string) (string, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path is our own cache-managed archive
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

func writeMetadataAtomic(path string, meta Metadata) error {
	content, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".quack-meta-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (l *Local) ClearExpired(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	stampPath := filepath.Join(l.BaseDir, lastClearedFilename)
	due, err := isClearDue(stampPath)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	if err := sweepExpired(l.BaseDir, l.ExpireAfter, l.Logger); err != nil {
		return err
	}
	return os.WriteFile(stampPath, []byte(timeNow().UTC().Format(time.RFC3339)), 0o644) //nolint:gosec // G306: stamp file, not sensitive
}

func isClearDue(stampPath string) (bool, error) {
	content, err := os.ReadFile(stampPath) //nolint:gosec // G304: stampPath is our own cache base dir
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	last, err := time.Parse(time.RFC3339, string(content))
	if err != nil {
		return true, nil // corrupt stamp: treat as due rather than never clearing
	}
	return timeNow().Sub(last) >= ClearDuration, nil
}

// sweepExpired walks <base>/<target>/<csum2>/<csumrest> leaf directories and
// removes any whose atime is older than expireAfter. os.ReadDir lists only
// the target and prefix levels; each leaf directory is only Stat'ed, so the
// sweep does not itself perturb the leaf atimes it inspects (spec.md §4.5).
func sweepExpired(base string, expireAfter time.Duration, logger *slog.Logger) error {
	targetDirs, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := timeNow().Add(-expireAfter)
	for _, td := range targetDirs {
		if !td.IsDir() {
			continue
		}
		targetPath := filepath.Join(base, td.Name())
		prefixDirs, err := os.ReadDir(targetPath)
		if err != nil {
			continue
		}
		for _, pd := range prefixDirs {
			if !pd.IsDir() {
				continue
			}
			prefixPath := filepath.Join(targetPath, pd.Name())
			leafDirs, err := os.ReadDir(prefixPath)
			if err != nil {
				continue
			}
			for _, ld := range leafDirs {
				if !ld.IsDir() {
					continue
				}
				leafPath := filepath.Join(prefixPath, ld.Name())
				at, err := accessTime(leafPath)
				if err != nil {
					continue
				}
				if at.Before(cutoff) {
					logger.Debug("cache.local.expire", "path", leafPath)
					_ = os.RemoveAll(leafPath)
				}
			}
		}
	}
	return nil
}

// timeNow is a seam over time.Now so tests can't flake on wall-clock
// boundaries; production always uses the real clock.
var timeNow = time.Now
