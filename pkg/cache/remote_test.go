// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paraflow-hq/quack/internal/errors"
	"github.com/paraflow-hq/quack/pkg/cloud"
)

func newCloudBackend(t *testing.T, prefix string) (*Cloud, *cloud.FakeDriver) {
	t.Helper()
	bucketDir := t.TempDir()
	driver := cloud.NewFakeDriver(bucketDir)
	l1 := NewLocal(t.TempDir(), Runtime{Hostname: "h"}, nil)
	return NewCloud(driver, l1, prefix, nil), driver
}

func TestCloud_SaveUploadsArchiveAndMetadata(t *testing.T) {
	srcDir := t.TempDir()
	backend, driver := newCloudBackend(t, ".quack-cache/demo")
	target := newTestTarget(t, srcDir, "cloudcsum1")
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, target))

	metaKey, archiveKey, err := backend.keys(target)
	require.NoError(t, err)

	metaExists, err := driver.Exists(metaKey)
	require.NoError(t, err)
	require.True(t, metaExists)

	archiveExists, err := driver.Exists(archiveKey)
	require.NoError(t, err)
	require.True(t, archiveExists)
}

func TestCloud_LoadFallsThroughToDownloadWhenL1Missing(t *testing.T) {
	srcDir := t.TempDir()
	writer, driver := newCloudBackend(t, ".quack-cache/demo")
	target := newTestTarget(t, srcDir, "cloudcsum2")
	ctx := context.Background()
	require.NoError(t, writer.Save(ctx, target))

	// A second Cloud instance with an empty L1 simulates a fresh machine.
	reader := NewCloud(driver, NewLocal(t.TempDir(), Runtime{Hostname: "h2"}, nil), ".quack-cache/demo", nil)

	exists, err := reader.Exists(ctx, target)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, os.Remove(target.Outputs.SortedPaths()[0]))
	require.NoError(t, reader.Load(ctx, target))

	content, err := os.ReadFile(target.Outputs.SortedPaths()[0])
	require.NoError(t, err)
	require.Equal(t, "built", string(content))
}

func TestCloud_LoadFromL1RefreshesRemoteMetadataTimestamp(t *testing.T) {
	srcDir := t.TempDir()
	backend, driver := newCloudBackend(t, ".quack-cache/demo")
	target := newTestTarget(t, srcDir, "cloudcsum3")
	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, target))

	metaKey, _, err := backend.keys(target)
	require.NoError(t, err)
	before, err := driver.Read(metaKey)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, backend.Load(ctx, target))

	after, err := driver.Read(metaKey)
	require.NoError(t, err)
	require.NotEqual(t, string(before), string(after), "touch on L1-hit load should refresh remote metadata")
}

func TestCloud_LoadFallsThroughToDownloadWhenLocalArchiveIsCorrupt(t *testing.T) {
	srcDir := t.TempDir()
	backend, _ := newCloudBackend(t, ".quack-cache/demo")
	target := newTestTarget(t, srcDir, "cloudcsum-corrupt")
	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, target))

	ap, err := backend.L1.archivePath(target)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ap, []byte("not a valid archive"), 0o644))

	require.NoError(t, os.Remove(target.Outputs.SortedPaths()[0]))
	require.NoError(t, backend.Load(ctx, target))

	content, err := os.ReadFile(target.Outputs.SortedPaths()[0])
	require.NoError(t, err)
	require.Equal(t, "built", string(content))

	ap2, err := backend.L1.archivePath(target)
	require.NoError(t, err)
	sum, err := hashFile(ap2)
	require.NoError(t, err)
	meta, err := backend.L1.ReadMetadata(target)
	require.NoError(t, err)
	require.Equal(t, meta.FileChecksum, sum, "re-downloaded archive must pass its own integrity check")
}

func TestCloud_LoadReturnsChecksumErrorWhenDownloadedArchiveIsCorrupt(t *testing.T) {
	srcDir := t.TempDir()
	writer, driver := newCloudBackend(t, ".quack-cache/demo")
	target := newTestTarget(t, srcDir, "cloudcsum-remote-corrupt")
	ctx := context.Background()
	require.NoError(t, writer.Save(ctx, target))

	_, archiveKey, err := writer.keys(target)
	require.NoError(t, err)
	corrupt := filepath.Join(t.TempDir(), "corrupt.tar.zst")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a valid archive"), 0o644))
	require.NoError(t, driver.Upload(corrupt, archiveKey))

	reader := NewCloud(driver, NewLocal(t.TempDir(), Runtime{Hostname: "h2"}, nil), ".quack-cache/demo", nil)
	err = reader.Load(ctx, target)
	require.Error(t, err)
	var checksumErr *errors.ChecksumError
	require.ErrorAs(t, err, &checksumErr)
}

func TestCloud_ClearExpiredRemovesExpiredEntry(t *testing.T) {
	srcDir := t.TempDir()
	backend, driver := newCloudBackend(t, ".quack-cache/demo")
	stale := newTestTarget(t, srcDir, "stalecloud1")
	ctx := context.Background()
	require.NoError(t, backend.Save(ctx, stale))

	_, archiveKey, err := backend.keys(stale)
	require.NoError(t, err)

	backend.ExpireAfter = 0
	require.NoError(t, backend.ClearExpired(ctx))

	stillExists, err := driver.Exists(archiveKey)
	require.NoError(t, err)
	require.False(t, stillExists)
}
