//go:build unix

package lockfile

import (
	"os"
	"syscall"
	"time"
)

// pidAlive probes the process table with signal 0. EPERM still proves
// the pid exists, just under another user.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}

// processStartTime approximates this process's start time. The exact
// value only matters for diagnostics in the lock record; liveness is
// decided by the pid probe.
func processStartTime() time.Time {
	return startTime
}

var startTime = time.Now().UTC()
