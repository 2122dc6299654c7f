// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// FakeProcessTable is an in-memory process list standing in for gopsutil.
type FakeProcessTable struct {
	mu      sync.Mutex
	procs   map[int]domain.ProcessObservation
	killed  []int
	nextPID int
	selfPID int
}

// NewFakeProcessTable creates an empty table.
func NewFakeProcessTable() *FakeProcessTable {
	return &FakeProcessTable{
		procs:   make(map[int]domain.ProcessObservation),
		nextPID: 1000,
		selfPID: 1,
	}
}

// Spawn adds a process and returns its PID.
func (f *FakeProcessTable) Spawn(name, cmdline string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	f.procs[f.nextPID] = domain.ProcessObservation{PID: f.nextPID, Name: name, CommandLine: cmdline}
	return f.nextPID
}

func (f *FakeProcessTable) Enumerate(ctx context.Context) ([]domain.ProcessObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ProcessObservation, 0, len(f.procs))
	for _, p := range f.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

func (f *FakeProcessTable) Kill(ctx context.Context, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.procs[pid]; !ok {
		return fmt.Errorf("pid %d: no such process: %w", pid, domain.ErrKillFailed)
	}
	delete(f.procs, pid)
	f.killed = append(f.killed, pid)
	return nil
}

func (f *FakeProcessTable) IsRunning(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.procs[pid]
	return ok
}

func (f *FakeProcessTable) GetCurrentPID() int {
	return f.selfPID
}

// Killed returns the PIDs killed so far, in order.
func (f *FakeProcessTable) Killed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.killed...)
}

var _ domain.ProcessManager = (*FakeProcessTable)(nil)
