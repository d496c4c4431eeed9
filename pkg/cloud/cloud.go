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

// Package cloud defines the minimal object-store contract pkg/cache's Cloud
// and Dev backends depend on (spec.md §6). The concrete S3-compatible wire
// client is an external-collaborator concern out of scope for this module
// (spec.md §1); this package only defines the interface and call sites, plus
// a local-filesystem fake used by tests in lieu of a real bucket.
package cloud

import "time"

// FileInfo describes one object under a ListFiles prefix.
type FileInfo struct {
	Path         string
	ModifiedTime time.Time
	Size         int64
}

// Driver is the cloud object-store contract (spec.md §6): exists, upload,
// download, read, remove, list_files. Keys are relative to the driver's own
// configured prefix (bucket + base path), never absolute.
type Driver interface {
	Exists(key string) (bool, error)
	Upload(localPath, key string) error
	Download(key, localPath string) error
	// Read returns (nil, nil) when key does not exist.
	Read(key string) ([]byte, error)
	Remove(key string, recursive bool) error
	ListFiles(prefix string, includePatterns, excludePatterns []string) ([]FileInfo, error)
}
