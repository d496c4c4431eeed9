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

// Package cienv reads the read-only CI environment: whether this invocation
// runs in CI, and the commit/job/pipeline/PR metadata used for commit-index
// bookkeeping (spec.md §4.6, §6).
package cienv

import "os"

// Info is the CI environment snapshot for one invocation.
type Info struct {
	IsCI         bool
	CommitSHA    string
	JobName      string
	PipelineID   string
	PRID         string
	IsMergeGroup bool
}

// Detect reads the process environment once. Downstream code should only
// depend on IsCI and CommitSHA (spec.md §6); the rest rides along for log
// attribution and commit-index metadata.
func Detect() Info {
	return Info{
		IsCI:         getEnv("CI", "") == "true",
		CommitSHA:    firstNonEmpty("GITHUB_SHA", "CI_COMMIT_SHA"),
		JobName:      firstNonEmpty("GITHUB_JOB", "CI_JOB_NAME"),
		PipelineID:   firstNonEmpty("GITHUB_RUN_ID", "CI_PIPELINE_ID"),
		PRID:         firstNonEmpty("GITHUB_PR_NUMBER", "CI_MERGE_REQUEST_IID"),
		IsMergeGroup: getEnv("GITHUB_EVENT_NAME", "") == "merge_group",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
