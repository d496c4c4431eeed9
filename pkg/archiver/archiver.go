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

// Package archiver implements deterministic pack/unpack of a target's
// declared output paths into a single zstd-compressed tar archive, and
// content-aware extraction that preserves destination mtimes for files
// whose content did not change (spec.md §4.2).
package archiver

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/schollz/progressbar/v3"

	"github.com/paraflow-hq/quack/internal/metrics"
)

// Pack writes paths (files and directories, as declared — stored without
// prefix rewriting) into a single zstd-compressed tar at destArchive,
// using a temp file and atomic rename so a crash never leaves a partial
// archive at the final path (spec.md §4.2).
func Pack(ctx context.Context, paths []string, destArchive string, showProgress bool) error {
	if err := os.MkdirAll(filepath.Dir(destArchive), 0o750); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destArchive), ".quack-pack-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath) // no-op once renamed away
	}()

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(-1, "packing outputs")
	}

	var totalBytes int64
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := addToTar(tw, p, bar)
		if err != nil {
			_ = tw.Close()
			_ = zw.Close()
			return fmt.Errorf("pack %s: %w", p, err)
		}
		totalBytes += n
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}

	if err := os.Rename(tmpPath, destArchive); err != nil {
		return fmt.Errorf("rename archive into place: %w", err)
	}

	metrics.ArchiveBytes.WithLabelValues("pack").Add(float64(totalBytes))
	return nil
}

func addToTar(tw *tar.Writer, root string, bar *progressbar.ProgressBar) (int64, error) {
	if _, err := os.Lstat(root); err != nil {
		if os.IsNotExist(err) {
			return 0, nil // declared output simply wasn't produced this run
		}
		return 0, err
	}

	var total int64
	err := filepath.Walk(root, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = path // stored as-declared: no leading prefix rewriting

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		f, err := os.Open(path) //nolint:gosec // G304: path is from our own declared output walk
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := io.Copy(tw, f)
		if err != nil {
			return err
		}
		total += n
		if bar != nil {
			_ = bar.Add64(n)
		}
		return nil
	})
	return total, err
}

// Extract decompresses archivePath, writing each tar entry at its stored
// path (absolute, or relative to the working directory), content-aware: an existing destination file whose SHA-256 matches
// the archived content is left untouched, mtime included, so upstream
// incremental toolchains (CMake and friends) don't see spurious rebuilds
// (spec.md §4.2).
func Extract(ctx context.Context, archivePath string, showProgress bool) error {
	f, err := os.Open(archivePath) //nolint:gosec // G304: archivePath is our own cache-managed path
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.Default(-1, "extracting outputs")
	}

	var totalBytes int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		n, err := extractEntry(tr, hdr, bar)
		if err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
		totalBytes += n
	}

	metrics.ArchiveBytes.WithLabelValues("extract").Add(float64(totalBytes))
	return nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, bar *progressbar.ProgressBar) (int64, error) {
	dest := hdr.Name

	switch hdr.Typeflag {
	case tar.TypeDir:
		return 0, os.MkdirAll(dest, os.FileMode(hdr.Mode))
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return 0, err
		}

		archived, err := io.ReadAll(tr)
		if err != nil {
			return 0, err
		}

		if sameContent(dest, archived) {
			// Destination untouched, including mtime (spec.md §4.2).
			return 0, nil
		}

		if err := os.WriteFile(dest, archived, os.FileMode(hdr.Mode)); err != nil {
			return 0, err
		}
		now := time.Now()
		if err := os.Chtimes(dest, now, now); err != nil {
			return 0, err
		}
		if bar != nil {
			_ = bar.Add64(int64(len(archived)))
		}
		return int64(len(archived)), nil
	default:
		return 0, nil
	}
}

func sameContent(dest string, archived []byte) bool {
	existing, err := os.ReadFile(dest) //nolint:gosec // G304: dest is the declared output path being restored
	if err != nil {
		return false
	}
	archivedSum := sha256.Sum256(archived)
	existingSum := sha256.Sum256(existing)
	return hex.EncodeToString(archivedSum[:]) == hex.EncodeToString(existingSum[:])
}
