//go:build windows

package transport

import (
	"os/exec"
	"time"
)

// prepareCommandForTermination is a no-op on Windows: there is no
// process-group equivalent used here, the kill-on-drop guarantee is
// carried solely by Close's direct Process.Kill call (spec §4.2 step 5
// "On non-POSIX platforms, rely solely on the kill-on-drop guarantee").
func prepareCommandForTermination(cmd *exec.Cmd) {}

// terminateProcessTree kills the child directly; Windows has no SIGTERM,
// so this skips straight to a forceful kill after the same polling window
// used on POSIX for symmetry of behavior.
func terminateProcessTree(cmd *exec.Cmd, timeout time.Duration) {
	if cmd.Process == nil {
		return
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cmd.ProcessState != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = cmd.Process.Kill()
}
