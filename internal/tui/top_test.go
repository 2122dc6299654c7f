package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

type fakeSource struct {
	state domain.PolicyState
	err   error
	calls int
}

func (f *fakeSource) Status() (domain.PolicyState, error) {
	f.calls++
	return f.state, f.err
}

func fixedModel(src StatusSource) Model {
	m := New(src, time.Second)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local) }
	return m
}

func TestModel_InitFetchesStatus(t *testing.T) {
	src := &fakeSource{state: domain.PolicyState{LockEnabled: true, CurrentProfile: "coding"}}
	m := fixedModel(src)

	msg := m.Init()()
	require.IsType(t, statusMsg{}, msg)
	assert.Equal(t, 1, src.calls)

	next, cmd := m.Update(msg)
	assert.NotNil(t, cmd, "a status reply schedules the next tick")

	view := next.View()
	assert.Contains(t, view, "LOCKED")
	assert.Contains(t, view, "Profile: coding")
	assert.Contains(t, view, "FlowScore (2026-03-01)")
}

func TestModel_ShowsUnlocked(t *testing.T) {
	m := fixedModel(&fakeSource{})
	next, _ := m.Update(statusMsg{state: domain.PolicyState{CurrentProfile: "study"}})

	assert.Contains(t, next.View(), "UNLOCKED")
}

func TestModel_KeepsLastStateOnError(t *testing.T) {
	m := fixedModel(&fakeSource{})
	next, _ := m.Update(statusMsg{state: domain.PolicyState{CurrentProfile: "study", Level: 3}})
	next, _ = next.Update(statusMsg{err: errors.New("disk gone")})

	view := next.View()
	assert.Contains(t, view, "Profile: study")
	assert.Contains(t, view, "disk gone")
}

func TestModel_LoadingBeforeFirstStatus(t *testing.T) {
	view := fixedModel(&fakeSource{}).View()
	assert.Contains(t, view, "loading...")
	assert.NotContains(t, view, "LOCKED")
}

func TestModel_TickRefetches(t *testing.T) {
	src := &fakeSource{}
	m := fixedModel(src)

	_, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, src.calls)
}

func TestModel_Keys(t *testing.T) {
	src := &fakeSource{}
	m := fixedModel(src)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, src.calls)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
}

func TestNew_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultRefresh, New(&fakeSource{}, 0).interval)
}
