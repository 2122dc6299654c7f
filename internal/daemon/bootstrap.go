package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Locker reports whether the daemon instance lock is held by someone else.
type Locker interface {
	HeldElsewhere() bool
}

// StartDaemon spawns `flowlock daemon` from the running executable.
func StartDaemon() error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return StartDaemonWithPath(executable)
}

// StartDaemonWithPath spawns `<binaryPath> daemon` detached from the
// calling terminal. The child inherits the environment, so FLOWLOCK_*
// overrides carry over.
func StartDaemonWithPath(binaryPath string) error {
	cmd := exec.Command(binaryPath, "daemon")

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s daemon: %w", binaryPath, err)
	}
	// The child outlives us; release its process handle.
	return cmd.Process.Release()
}

// EnsureRunning starts a daemon unless one already holds the lock.
// It returns true when a new daemon was spawned.
func EnsureRunning(lock Locker, binaryPath string) (bool, error) {
	if lock.HeldElsewhere() {
		return false, nil
	}
	if err := StartDaemonWithPath(binaryPath); err != nil {
		return false, err
	}
	return true, nil
}
