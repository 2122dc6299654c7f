// Package tui renders the live `flowlock top` dashboard.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/usecase"
)

// DefaultRefresh is how often the dashboard re-reads the state.
const DefaultRefresh = 2 * time.Second

// StatusSource is satisfied by usecase.Controller.
type StatusSource interface {
	Status() (domain.PolicyState, error)
}

type tickMsg time.Time

type statusMsg struct {
	state domain.PolicyState
	err   error
}

// Model polls a StatusSource and renders the dashboard.
type Model struct {
	source   StatusSource
	interval time.Duration
	now      func() time.Time

	state  domain.PolicyState
	err    error
	loaded bool
}

// New creates a dashboard model. A non-positive interval uses DefaultRefresh.
func New(source StatusSource, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	return Model{source: source, interval: interval, now: time.Now}
}

// Run shows the dashboard until the user quits.
func Run(source StatusSource, interval time.Duration) error {
	_, err := tea.NewProgram(New(source, interval), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.fetch()
}

func (m Model) fetch() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		st, err := source.Status()
		return statusMsg{state: st, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.state = msg.state
			m.loaded = true
		}
		return m, m.tick()

	case tickMsg:
		return m, m.fetch()
	}
	return m, nil
}

func (m Model) View() string {
	header := titleStyle.Render(usecase.TitleFlowLock)
	if m.loaded {
		if m.state.LockEnabled {
			header += "  " + lockOn.Render("LOCKED")
		} else {
			header += "  " + lockOff.Render("UNLOCKED")
		}
	}

	body := "loading..."
	if m.loaded {
		body = usecase.RenderDashboard(m.state, m.now())
	}

	parts := []string{header, bodyStyle.Render(body)}
	if m.err != nil {
		parts = append(parts, errStyle.Render("state unreadable: "+m.err.Error()))
	}
	parts = append(parts, helpStyle.Render("q quit  r refresh"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}
