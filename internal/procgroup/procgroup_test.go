// SPDX-License-Identifier: MIT

//go:build linux

package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKillGroupReapsChildren(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 60 & sleep 60")
	Set(cmd)
	require.NoError(t, cmd.Start())

	pid := cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	require.Equal(t, pid, pgid, "leader should own its group")

	// Give the shell a beat to fork the background sleep.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, KillGroup(pid, 100*time.Millisecond, 2*time.Second))
	_ = cmd.Wait()

	// Signal 0 probes for liveness without delivering anything. The orphaned
	// background sleep is reaped by init, so poll briefly.
	require.Eventually(t, func() bool {
		return errors.Is(syscall.Kill(-pgid, syscall.Signal(0)), syscall.ESRCH)
	}, 2*time.Second, 20*time.Millisecond, "group should be fully reaped")
}

func TestKillGroupAbsentProcess(t *testing.T) {
	require.NoError(t, KillGroup(1<<30, 10*time.Millisecond, 10*time.Millisecond))
}

func TestKillGroupIgnoresNonPositivePid(t *testing.T) {
	require.NoError(t, KillGroup(0, time.Millisecond, time.Millisecond))
	require.NoError(t, KillGroup(-5, time.Millisecond, time.Millisecond))
}
