// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package procreg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun_CapturesStdout(t *testing.T) {
	reg := New(nil)
	result, err := Run(context.Background(), reg, "echo hello", "", nil)
	require.NoError(t, err)
	require.Equal(t, "hello\n", result.Stdout)
	require.Equal(t, 0, reg.Len())
}

func TestRun_NonZeroExitReturnsError(t *testing.T) {
	reg := New(nil)
	_, err := Run(context.Background(), reg, "exit 3", "", nil)
	require.Error(t, err)
	require.Equal(t, 0, reg.Len())
}

func TestTerminateAll_KillsRunningSubprocess(t *testing.T) {
	reg := New(nil)
	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), reg, "sleep 30", "", nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 10*time.Millisecond)

	reg.TerminateAll()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sleep was not terminated")
	}
}
