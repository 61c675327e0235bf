// Package procutil spawns detached child processes and reaps process
// trees, the Go analogue of the source's psutil-based
// `_kill_tomato_job`/`subprocess.Popen(..., start_new_session=True)`
// helpers (§4.2, §4.3, §9 "job worker spawning uses detached child
// processes").
package procutil

import (
	"fmt"
	"os/exec"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	gopsproc "github.com/shirou/gopsutil/v3/process"
)

// Spawn starts name with args as a detached child (new session / new
// process group, platform-specific — see procutil_unix.go and
// procutil_windows.go) so killing it later does not affect the caller,
// and the caller's exit does not take the child down with it. Stdout and
// stderr are discarded, so a child's log output survives only where the
// child writes a log file itself (tomato-job writes its job log).
func Spawn(name string, args ...string) (pid int, err error) {
	cmd := exec.Command(name, args...)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("procutil: spawn %s: %w", name, err)
	}
	// The child is deliberately not Wait()'d: ownership of its lifecycle
	// passes to the pid, tracked henceforth only through daemon state.
	go func() { _ = cmd.Wait() }()
	return cmd.Process.Pid, nil
}

// Alive reports whether pid refers to a live process, the analogue of
// `psutil.pid_exists`.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return ok
}

// KillTree sends a termination signal to every direct child of pid, waits
// up to timeout for them to exit, and logs stragglers — the direct
// translation of `_kill_tomato_job`: terminate children, wait_procs with
// a timeout, then give up rather than escalate to SIGKILL.
func KillTree(pid int, timeout time.Duration, logger hclog.Logger) error {
	proc, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		// Already gone: nothing to kill.
		return nil
	}
	children, err := proc.Children()
	if err != nil {
		children = nil
	}
	logger.Warn("killing proc", "pid", pid, "children", len(children))

	for _, child := range children {
		if err := child.Terminate(); err != nil {
			logger.Warn("dead proc", "pid", child.Pid, "error", err)
		}
	}

	deadline := time.Now().Add(timeout)
	for _, child := range children {
		for time.Now().Before(deadline) {
			alive, _ := child.IsRunning()
			if !alive {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
	}

	var alive []int32
	for _, child := range children {
		if running, _ := child.IsRunning(); running {
			alive = append(alive, child.Pid)
		}
	}
	if len(alive) > 0 {
		logger.Warn("processes still alive after grace period", "pids", alive)
	}
	return nil
}
