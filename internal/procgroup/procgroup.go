// SPDX-License-Identifier: MIT

// Package procgroup tears down subprocess trees. rar and unrar may fork
// helpers of their own; killing only the direct child would leak those when a
// codec invocation is cancelled, so the mover starts every codec in a fresh
// process group and reaps the whole group on cancellation.
package procgroup

import (
	"errors"
	"os/exec"
	"time"
)

// ErrKillFailed reports a process group that survived SIGKILL past the reap
// timeout. The caller can only log it; the group is beyond help.
var ErrKillFailed = errors.New("procgroup: kill failed")

// Set marks cmd to start as the leader of a new process group. It must be
// called before cmd starts; KillGroup assumes the group exists.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// KillGroup terminates the process group led by pid: SIGTERM first, then
// SIGKILL once grace elapses. It returns nil when the group is already gone
// and ErrKillFailed when the group outlives timeout after the SIGKILL.
func KillGroup(pid int, grace, timeout time.Duration) error {
	return killGroup(pid, grace, timeout)
}
