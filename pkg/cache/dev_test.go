// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDev_PrefersCITierOverOwnTier(t *testing.T) {
	srcDir := t.TempDir()
	ciTier, _ := newCloudBackend(t, ".quack-cache/demo")
	ownTier, _ := newCloudBackend(t, ".quack-cache-dev/demo")
	dev := NewDev(ownTier, ciTier, nil)

	target := newTestTarget(t, srcDir, "devcsum1")
	ctx := context.Background()

	// A CI job already populated the CI tier; the developer never built
	// this target locally.
	require.NoError(t, ciTier.Save(ctx, target))

	exists, err := dev.Exists(ctx, target)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, os.Remove(target.Outputs.SortedPaths()[0]))
	require.NoError(t, dev.Load(ctx, target))

	content, err := os.ReadFile(target.Outputs.SortedPaths()[0])
	require.NoError(t, err)
	require.Equal(t, "built", string(content))

	// Dev must not have written anything into its own tier when the CI
	// tier already satisfied the request.
	ownExists, err := ownTier.Exists(ctx, target)
	require.NoError(t, err)
	require.False(t, ownExists)
}

func TestDev_FallsBackToOwnTierWhenCIMisses(t *testing.T) {
	srcDir := t.TempDir()
	ciTier, _ := newCloudBackend(t, ".quack-cache/demo")
	ownTier, _ := newCloudBackend(t, ".quack-cache-dev/demo")
	dev := NewDev(ownTier, ciTier, nil)

	target := newTestTarget(t, srcDir, "devcsum2")
	ctx := context.Background()

	require.NoError(t, dev.Save(ctx, target))

	exists, err := dev.Exists(ctx, target)
	require.NoError(t, err)
	require.True(t, exists)

	ciExists, err := ciTier.Exists(ctx, target)
	require.NoError(t, err)
	require.False(t, ciExists, "Dev saves only ever land in its own tier")
}

func TestDev_ExpiryDefaultsToThreeDays(t *testing.T) {
	ciTier, _ := newCloudBackend(t, ".quack-cache/demo")
	ownTier, _ := newCloudBackend(t, ".quack-cache-dev/demo")
	dev := NewDev(ownTier, ciTier, nil)
	require.Equal(t, DevExpireDays, dev.Cloud.ExpireAfter)
}
