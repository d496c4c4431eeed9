// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// FakeDriver is a local-filesystem-backed stand-in for Driver, used by
// pkg/cache's tests in place of a real bucket — grounded on the teacher's
// hand-written test double pattern (pkg/tools/client_test_cozodb.go) rather
// than a mock framework.
type FakeDriver struct {
	root string
}

// NewFakeDriver roots a FakeDriver at dir, which must already exist.
func NewFakeDriver(dir string) *FakeDriver {
	return &FakeDriver{root: dir}
}

func (f *FakeDriver) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

func (f *FakeDriver) Exists(key string) (bool, error) {
	_, err := os.Stat(f.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *FakeDriver) Upload(localPath, key string) error {
	dest := f.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	return copyFile(localPath, dest)
}

func (f *FakeDriver) Download(key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
		return err
	}
	return copyFile(f.path(key), localPath)
}

func (f *FakeDriver) Read(key string) ([]byte, error) {
	content, err := os.ReadFile(f.path(key)) //nolint:gosec // G304: key is cache-internal, path is join-rooted at f.root
	if os.IsNotExist(err) {
		return nil, nil
	}
	return content, err
}

func (f *FakeDriver) Remove(key string, recursive bool) error {
	p := f.path(key)
	if recursive {
		return os.RemoveAll(p)
	}
	err := os.Remove(p)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FakeDriver) ListFiles(prefix string, includePatterns, excludePatterns []string) ([]FileInfo, error) {
	includes, err := compileAll(includePatterns)
	if err != nil {
		return nil, err
	}
	excludes, err := compileAll(excludePatterns)
	if err != nil {
		return nil, err
	}

	base := f.path(prefix)
	var out []FileInfo
	err = filepath.Walk(base, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if len(includes) > 0 && !matchesAny(includes, rel) {
			return nil
		}
		if matchesAny(excludes, rel) {
			return nil
		}
		out = append(out, FileInfo{Path: rel, ModifiedTime: fi.ModTime(), Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: src is an internal cache-managed path
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec // G304: dst is an internal cache-managed path
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
