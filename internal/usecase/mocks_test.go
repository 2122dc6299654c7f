package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/scoring"
)

// mockStateStore is an in-memory domain.StateStore
type mockStateStore struct {
	mu        sync.Mutex
	state     domain.PolicyState
	readErr   error
	updateErr error
	stale     *domain.PolicyState // returned by Read instead of state when set
	reads     int
	updates   int
}

func newMockStateStore(st domain.PolicyState) *mockStateStore {
	return &mockStateStore{state: st}
}

func (m *mockStateStore) Read() (domain.PolicyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.stale != nil {
		return *m.stale, m.readErr
	}
	return m.state, m.readErr
}

func (m *mockStateStore) Update(fn func(*domain.PolicyState) error) (domain.PolicyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.state, m.updateErr
	}
	next := m.state
	if err := fn(&next); err != nil {
		return m.state, err
	}
	next.Revision = m.state.Revision + 1
	scoring.Recompute(&next)
	m.state = next
	return next, nil
}

func (m *mockStateStore) CompareAndSwap(st domain.PolicyState) (domain.PolicyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.Revision != m.state.Revision {
		return m.state, domain.ErrStateConflict
	}
	st.Revision++
	m.state = st
	return st, nil
}

func (m *mockStateStore) Path() string { return "/tmp/mock-state.json" }
func (m *mockStateStore) Close() error { return nil }

func (m *mockStateStore) get() domain.PolicyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockStateStore) set(fn func(*domain.PolicyState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

// mockProfileLoader serves profiles from a map
type mockProfileLoader struct {
	profiles map[string]domain.Profile
	loads    int
}

func (m *mockProfileLoader) Load(name string) (domain.Profile, error) {
	m.loads++
	p, ok := m.profiles[name]
	if !ok {
		return domain.Profile{Name: name}.Normalized(), domain.ErrConfigMissing
	}
	return p.Normalized(), nil
}

func (m *mockProfileLoader) List() []string {
	names := make([]string, 0, len(m.profiles))
	for n := range m.profiles {
		names = append(names, n)
	}
	return names
}

// mockIdleProbe reports a fixed idle time
type mockIdleProbe struct {
	idle  time.Duration
	calls int
}

func (m *mockIdleProbe) IdleDuration(context.Context) time.Duration {
	m.calls++
	return m.idle
}

// mockProcessManager returns a fixed process table
type mockProcessManager struct {
	procs      []domain.ProcessObservation
	enumErr    error
	killErr    error
	enumCalls  int
	killedPIDs []int
	selfPID    int
}

func (m *mockProcessManager) Enumerate(context.Context) ([]domain.ProcessObservation, error) {
	m.enumCalls++
	if m.enumErr != nil {
		return nil, m.enumErr
	}
	return m.procs, nil
}

func (m *mockProcessManager) Kill(_ context.Context, pid int) error {
	if m.killErr != nil {
		return m.killErr
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	return nil
}

func (m *mockProcessManager) GetCurrentPID() int { return m.selfPID }

// mockNotifier records notifications
type mockNotifier struct {
	mu   sync.Mutex
	sent []string // "title: body"
}

func (m *mockNotifier) Notify(title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, title+": "+body)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// mockResponder records prompts
type mockResponder struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	hang    bool // ignore context and never return
}

func (m *mockResponder) Respond(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, text)
	hang := m.hang
	m.mu.Unlock()
	if hang {
		select {}
	}
	return m.reply, m.err
}

func (m *mockResponder) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// mockDispatcher records dispatched events
type mockDispatcher struct {
	mu     sync.Mutex
	events []domain.ProfileEvent
}

func (m *mockDispatcher) Dispatch(ev domain.ProfileEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// mockPreparer fails a fixed number of times
type mockPreparer struct {
	mu       sync.Mutex
	failures int
	calls    []domain.ProfileEvent
}

var errPrepare = errors.New("prepare failed")

func (m *mockPreparer) Prepare(_ context.Context, ev domain.ProfileEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ev)
	if len(m.calls) <= m.failures {
		return errPrepare
	}
	return nil
}

func (m *mockPreparer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
