// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dependency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Repr is the one canonical textual rendering of an ordered sequence of
// strings used everywhere a checksum is derived from a list (spec.md
// §4.1: "implementers must fix one canonical rendering ... and use it
// everywhere"). JSON array encoding is deterministic for a fixed input
// order and escapes unambiguously, so it is used as-is rather than
// reinvented per call site.
func Repr(items []string) string {
	b, err := json.Marshal(items)
	if err != nil {
		// items is always []string; Marshal cannot fail on it.
		panic(err)
	}
	return string(b)
}

// Checksum hashes Repr(items) with SHA-256 and returns lowercase hex.
func Checksum(items []string) string {
	sum := sha256.Sum256([]byte(Repr(items)))
	return hex.EncodeToString(sum[:])
}

// ReprPairs renders an ordered sequence of (a, b) string pairs the same
// way Repr renders a flat sequence, so that the source/command/variable
// checksum rules (each built from tuples) all flow through one renderer.
func ReprPairs(pairs [][2]string) string {
	b, err := json.Marshal(pairs)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// ChecksumPairs hashes ReprPairs(pairs) with SHA-256 and returns lowercase hex.
func ChecksumPairs(pairs [][2]string) string {
	sum := sha256.Sum256([]byte(ReprPairs(pairs)))
	return hex.EncodeToString(sum[:])
}
