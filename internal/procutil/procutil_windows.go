//go:build windows

package procutil

import (
	"os/exec"
	"syscall"
)

// detach puts the child into its own process group, matching
// `subprocess.CREATE_NEW_PROCESS_GROUP`.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x08000000, // + CREATE_NO_WINDOW
	}
}
