// Package daemonize is the external adapter spec §1 calls out of scope for
// the core ("Daemonization procedure (double-fork, setsid, fd-sanitation,
// lockfile)"); its contract is specified only at the boundary it touches:
// by the time Daemonize returns false (in the re-exec'd child), the process
// is detached from its controlling terminal and stdio has been redirected.
//
// A traditional double-fork is unsafe to perform directly inside a running
// Go program (fork() duplicates only the calling OS thread, not the Go
// runtime's other threads/goroutines), so the first fork is implemented as
// a re-exec of the same binary into a new session, the idiom Go daemonizing
// tools use in place of libc-style fork+exit.
package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

const reexecEnvVar = "TASKMASTER_DAEMONIZED"

// Daemonize re-execs the current process detached into its own session if
// it has not already done so (guarded by reexecEnvVar), redirecting stdio
// to /dev/null. It returns true in the parent (which should exit 0) and
// false in the (re-exec'd) child, which should continue startup.
func Daemonize() (isParent bool, err error) {
	if os.Getenv(reexecEnvVar) == "1" {
		return false, nil
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	self, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Env = append(os.Environ(), reexecEnvVar+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("re-exec for daemonization: %w", err)
	}
	return true, nil
}
