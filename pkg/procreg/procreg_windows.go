// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package procreg

import "os/exec"

// SetupProcessGroup is a no-op on Windows; process-group termination falls
// back to killing the direct child (see terminateProcessGroup).
func SetupProcessGroup(cmd *exec.Cmd) {}

func terminateProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
