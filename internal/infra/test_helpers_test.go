package infra

import (
	"context"
	"strings"
	"sync"
)

// mockCommandRunner is a test double for CommandRunner
type mockCommandRunner struct {
	mu       sync.Mutex
	calls    []string // "name arg1 arg2"
	stdins   []string
	output   []byte
	err      error
	block    bool // Output waits for ctx cancellation
	runErrs  map[string]error
	startErr error
}

func newMockCommandRunner() *mockCommandRunner {
	return &mockCommandRunner{runErrs: make(map[string]error)}
}

func (m *mockCommandRunner) record(name string, args []string) string {
	call := strings.Join(append([]string{name}, args...), " ")
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	return call
}

func (m *mockCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	call := m.record(name, args)
	m.mu.Lock()
	defer m.mu.Unlock()
	for prefix, err := range m.runErrs {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return m.err
}

func (m *mockCommandRunner) Output(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	m.record(name, args)
	m.mu.Lock()
	m.stdins = append(m.stdins, stdin)
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.output, m.err
}

func (m *mockCommandRunner) Start(name string, args ...string) error {
	m.record(name, args)
	return m.startErr
}

func (m *mockCommandRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
