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

// Package cache implements the four tiered cache backends spec.md §4.5
// describes (Raw, Local, Cloud, Dev), sharing one Metadata shape and
// the single-writer/multi-reader coherence rule: a cache entry exists iff
// its metadata object exists, and writers always archive before writing
// metadata. Grounded on the teacher's pkg/storage/embedded.go backend
// abstraction and pkg/ingestion/manifest.go's atomic-persistence pattern.
package cache

import (
	"context"
	"time"

	"github.com/paraflow-hq/quack/pkg/spec"
)

const (
	// MetadataFilename is CACHE_METADATA_FILENAME (spec.md §4.5/§6).
	MetadataFilename = "CACHE_METADATA.json"

	// ClearDuration bounds how often a Local sweep runs:
	// CACHE_CLEAR_DURATION_DAYS (spec.md §4.5). Cloud sweeps on every call.
	ClearDuration = 7 * 24 * time.Hour

	// ExpireDays is CACHE_EXPIRE_DAYS for Local/Cloud (spec.md §4.5).
	ExpireDays = 15 * 24 * time.Hour

	// DevExpireDays is the Dev backend's shorter 3-day expiry (spec.md §4.5).
	DevExpireDays = 3 * 24 * time.Hour

	lastClearedFilename = "last_cleared"
)

// Metadata is spec.md §3's CacheEntry metadata JSON shape, reused verbatim
// for the commit-index bookkeeping object (SPEC_FULL.md §4.6 supplement).
type Metadata struct {
	TargetChecksum string    `json:"target_checksum"`
	FileChecksum   string    `json:"file_checksum"`
	Hostname       string    `json:"hostname"`
	CommitSHA      string    `json:"commit_sha,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Backend is the contract every tier satisfies (spec.md §4.5).
type Backend interface {
	Exists(ctx context.Context, target *spec.Target) (bool, error)
	Load(ctx context.Context, target *spec.Target) error
	Save(ctx context.Context, target *spec.Target) error
	ClearExpired(ctx context.Context) error
}

// Runtime carries process-wide values every backend needs but that spec.md
// §3 scopes out of the Spec document itself: the hostname (read once via
// os.Hostname and cached, per the original's socket.gethostname() call
// site), and the commit SHA a save should be attributed to.
type Runtime struct {
	Hostname  string
	CommitSHA string
}
