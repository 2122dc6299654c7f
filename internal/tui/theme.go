package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha subset.
const (
	colorRed      lipgloss.Color = "#f38ba8"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorLavender lipgloss.Color = "#b4befe"
	colorText     lipgloss.Color = "#cdd6f4"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorSurface1 lipgloss.Color = "#45475a"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(colorLavender).Bold(true)
	lockOn     = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	lockOff    = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	bodyStyle  = lipgloss.NewStyle().
			Foreground(colorText).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(0, 1)
	errStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	helpStyle = lipgloss.NewStyle().Foreground(colorOverlay1)
)
