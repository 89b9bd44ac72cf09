// SPDX-License-Identifier: MIT

package filemover

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/jdswan/sonicat/internal/procgroup"
)

// runFunc invokes the archive codec in dir. Tests substitute it.
type runFunc func(ctx context.Context, dir, bin string, args ...string) error

const outputTail = 512

// runCommand runs the codec in its own process group so a cancelled context
// tears down the whole subprocess tree, not just the direct child.
func runCommand(ctx context.Context, dir, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	procgroup.Set(cmd)
	cmd.Cancel = func() error {
		return procgroup.KillGroup(cmd.Process.Pid, 2*time.Second, 5*time.Second)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		if len(out) > outputTail {
			out = out[len(out)-outputTail:]
		}
		return fmt.Errorf("%s %v: %w: %s", bin, args, err, out)
	}
	return nil
}
