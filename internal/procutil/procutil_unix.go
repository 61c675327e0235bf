//go:build !windows

package procutil

import (
	"os/exec"
	"syscall"
)

// detach puts the child into a new session so that a SIGTERM/SIGKILL
// sent to the parent's process group (e.g. a shell's Ctrl-C) does not
// propagate to it, matching `start_new_session=True`.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
