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

// Package config reads RuntimeConfig: process configuration that sits
// outside the Spec document (quack.yaml) entirely — cache backend
// selection, cloud bucket/prefix, metrics listen address. Grounded on the
// teacher's cmd/cie/config.go getEnv(key, fallback) idiom.
package config

import "os"

// RuntimeConfig is invocation-level configuration, distinct from the Spec
// document itself (spec.md §6's "process configuration" carve-out).
type RuntimeConfig struct {
	CacheBackend string // QUACK_CACHE_BACKEND: false|local|cloud|dev
	CloudBucket  string // QUACK_CLOUD_BUCKET
	CloudPrefix  string // QUACK_CLOUD_PREFIX, defaults to ".quack-cache"
	MetricsAddr  string // QUACK_METRICS_ADDR, empty disables the /metrics server
	SaveForLoad  bool   // QUACK_SAVE_FOR_LOAD: upload commit-index bookkeeping after a NORMAL save in CI
}

// Load reads RuntimeConfig from the process environment.
func Load() RuntimeConfig {
	return RuntimeConfig{
		CacheBackend: getEnv("QUACK_CACHE_BACKEND", "local"),
		CloudBucket:  getEnv("QUACK_CLOUD_BUCKET", ""),
		CloudPrefix:  getEnv("QUACK_CLOUD_PREFIX", ".quack-cache"),
		MetricsAddr:  getEnv("QUACK_METRICS_ADDR", ""),
		SaveForLoad:  getEnv("QUACK_SAVE_FOR_LOAD", "") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
