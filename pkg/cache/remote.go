// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/pkg/cloud"
	"github.com/paraflow-hq/quack/pkg/spec"
)

// Cloud is the `cloud` backend (spec.md §4.5): wraps a Local backend as an
// L1 cache in front of a cloud.Driver, under base key prefix
// `.quack-cache/<app_name>`.
type Cloud struct {
	Driver      cloud.Driver
	L1          *Local
	BasePrefix  string
	ExpireAfter time.Duration
	Logger      *slog.Logger
}

// NewCloud constructs a Cloud backend. basePrefix is ".quack-cache/<app_name>"
// for the normal tier, or ".quack-cache-dev/<app_name>" for Dev's own tier
// (spec.md §6 Cloud layout).
func NewCloud(driver cloud.Driver, l1 *Local, basePrefix string, logger *slog.Logger) *Cloud {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cloud{Driver: driver, L1: l1, BasePrefix: basePrefix, ExpireAfter: ExpireDays, Logger: logger}
}

func (c *Cloud) keys(target *spec.Target) (metaKey, archiveKey string, err error) {
	cachePath, err := target.CachePath()
	if err != nil {
		return "", "", err
	}
	dir := path.Join(c.BasePrefix, filepath.ToSlash(cachePath))
	return path.Join(dir, MetadataFilename), path.Join(dir, target.ArchiveFilename()), nil
}

func (c *Cloud) Exists(_ context.Context, target *spec.Target) (bool, error) {
	metaKey, _, err := c.keys(target)
	if err != nil {
		return false, err
	}
	return c.Driver.Exists(metaKey)
}

// Load implements spec.md §4.5's Cloud.load(target, update_access_time=true)
// default: if the L1 copy exists, load from it and refresh the remote
// metadata's modification time; otherwise download then local-load then
// touch.
func (c *Cloud) Load(ctx context.Context, target *spec.Target) error {
	return c.load(ctx, target, true)
}

func (c *Cloud) load(ctx context.Context, target *spec.Target, updateAccessTime bool) error {
	l1Exists, err := c.L1.Exists(ctx, target)
	if err != nil {
		return err
	}
	if l1Exists {
		valid, err := c.verifyArchive(target)
		if err != nil {
			return err
		}
		if valid {
			if err := c.L1.Load(ctx, target); err != nil {
				return err
			}
			if updateAccessTime {
				return c.touchRemote(target)
			}
			return nil
		}
		// The Local copy exists but its archive is corrupt: fall through to
		// a fresh Cloud download instead of failing the invocation (spec.md
		// §4.5).
		c.Logger.Warn("cache.local.corrupt", "target", target.Name)
	}

	metaKey, archiveKey, err := c.keys(target)
	if err != nil {
		return err
	}
	archivePath, err := c.L1.archivePath(target)
	if err != nil {
		return err
	}
	metaPath, err := c.L1.metadataPath(target)
	if err != nil {
		return err
	}
	if err := ensureDir(archivePath); err != nil {
		return err
	}

	c.Logger.Debug("cache.cloud.download", "target", target.Name, "archive_key", archiveKey)
	if err := c.Driver.Download(archiveKey, archivePath); err != nil {
		return fmt.Errorf("download archive for %s: %w", target.Name, err)
	}
	if err := c.Driver.Download(metaKey, metaPath); err != nil {
		return fmt.Errorf("download metadata for %s: %w", target.Name, err)
	}

	valid, err := c.verifyArchive(target)
	if err != nil {
		return err
	}
	if !valid {
		return errors.NewChecksumError(fmt.Sprintf("downloaded archive for target %s failed its integrity check", target.Name), nil)
	}

	if err := c.L1.Load(ctx, target); err != nil {
		return err
	}
	if updateAccessTime {
		return c.touchRemote(target)
	}
	return nil
}

// verifyArchive compares the Local tier's archive file against the
// recorded file_checksum in its metadata (spec.md §7). A missing or
// unreadable archive counts as invalid rather than a hard error, since the
// caller's response in both cases is the same: fall back to Cloud.
func (c *Cloud) verifyArchive(target *spec.Target) (bool, error) {
	meta, err := c.L1.ReadMetadata(target)
	if err != nil {
		return false, err
	}
	archivePath, err := c.L1.archivePath(target)
	if err != nil {
		return false, err
	}
	sum, err := hashFile(archivePath)
	if err != nil {
		return false, nil
	}
	return sum == meta.FileChecksum, nil
}

func (c *Cloud) touchRemote(target *spec.Target) error {
	meta, err := c.L1.ReadMetadata(target)
	if err != nil {
		return err
	}
	meta.CreatedAt = timeNow()
	metaKey, _, err := c.keys(target)
	if err != nil {
		return err
	}
	metaPath, err := c.L1.metadataPath(target)
	if err != nil {
		return err
	}
	if err := writeMetadataAtomic(metaPath, meta); err != nil {
		return err
	}
	return c.Driver.Upload(metaPath, metaKey)
}

// Save: local-save first, then upload both archive and metadata (spec.md §4.5).
func (c *Cloud) Save(ctx context.Context, target *spec.Target) error {
	if err := c.L1.Save(ctx, target); err != nil {
		return err
	}
	metaKey, archiveKey, err := c.keys(target)
	if err != nil {
		return err
	}
	archivePath, err := c.L1.archivePath(target)
	if err != nil {
		return err
	}
	metaPath, err := c.L1.metadataPath(target)
	if err != nil {
		return err
	}
	if err := c.Driver.Upload(archivePath, archiveKey); err != nil {
		return fmt.Errorf("upload archive for %s: %w", target.Name, err)
	}
	if err := c.Driver.Upload(metaPath, metaKey); err != nil {
		return fmt.Errorf("upload metadata for %s: %w", target.Name, err)
	}
	return nil
}

// CommitIndexKey is `<base>/_commits/<commit_sha>/<target-safe-name>.json`
// (SPEC_FULL.md §4.6 supplement, grounded on
// original_source/src/quack/cache.py).
func (c *Cloud) CommitIndexKey(target *spec.Target, commitSHA string) string {
	return path.Join(c.BasePrefix, "_commits", commitSHA, target.SafeName()+".json")
}

// SaveForLoad uploads a copy of target's cache metadata to the commit-index
// path, closing the loop spec.md §4.6 describes: a follow-up CI job can
// resolve target_checksum by commit SHA instead of recomputing the
// fingerprint.
func (c *Cloud) SaveForLoad(_ context.Context, target *spec.Target, commitSHA string) error {
	meta, err := c.L1.ReadMetadata(target)
	if err != nil {
		return err
	}
	content, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp("", ".quack-commit-index-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return c.Driver.Upload(tmp.Name(), c.CommitIndexKey(target, commitSHA))
}

// ResolveChecksumByCommit reads the commit-index object for target at
// commitSHA and returns its target_checksum, for LOAD_ONLY-by-commit-SHA
// resolution (spec.md §4.6). Returns a *errors.CommitIndexError when the
// object does not exist.
func (c *Cloud) ResolveChecksumByCommit(_ context.Context, target *spec.Target, commitSHA string) (string, error) {
	key := c.CommitIndexKey(target, commitSHA)
	content, err := c.Driver.Read(key)
	if err != nil {
		return "", fmt.Errorf("read commit index %s: %w", key, err)
	}
	if content == nil {
		return "", errors.NewCommitIndexError(fmt.Sprintf("no commit index entry for target %s at commit %s", target.Name, commitSHA), nil)
	}
	var meta Metadata
	if err := json.Unmarshal(content, &meta); err != nil {
		return "", fmt.Errorf("malformed commit index %s: %w", key, err)
	}
	return meta.TargetChecksum, nil
}

// ClearExpired lists metadata objects under the base prefix and removes the
// containing directory recursively for any older than ExpireAfter.
func (c *Cloud) ClearExpired(_ context.Context) error {
	files, err := c.Driver.ListFiles(c.BasePrefix, []string{`CACHE_METADATA\.json$`}, nil)
	if err != nil {
		return err
	}
	cutoff := timeNow().Add(-c.ExpireAfter)
	for _, f := range files {
		if f.ModifiedTime.After(cutoff) {
			continue
		}
		dir := path.Dir(f.Path)
		c.Logger.Debug("cache.cloud.expire", "dir", dir)
		if err := c.Driver.Remove(dir, true); err != nil {
			c.Logger.Warn("cache.cloud.expire_failed", "dir", dir, "error", err)
		}
	}
	return nil
}
