// Package infra implements infrastructure concerns (process, state storage, OS collaborators).
package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// Enumerate returns every process whose name could be read.
func (pm *ProcessManagerImpl) Enumerate(ctx context.Context) ([]domain.ProcessObservation, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	found := make([]domain.ProcessObservation, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // Process may have exited
		}

		// Kernel threads and other users' processes may hide their cmdline.
		cmdline, _ := p.CmdlineWithContext(ctx)

		found = append(found, domain.ProcessObservation{
			PID:         int(p.Pid),
			Name:        name,
			CommandLine: cmdline,
		})
	}

	return found, nil
}

// Kill terminates a process by PID using SIGKILL.
func (pm *ProcessManagerImpl) Kill(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("pid %d: %v: %w", pid, err, domain.ErrKillFailed)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("pid %d: %v: %w", pid, err, domain.ErrKillFailed)
	}
	return nil
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
