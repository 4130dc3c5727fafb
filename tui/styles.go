package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPrimary   = lipgloss.Color("#7D56F4") // Purple
	colorSecondary = lipgloss.Color("#F4A956") // Orange
	colorText      = lipgloss.Color("#FAFAFA") // White/Light Gray
	colorSubtext   = lipgloss.Color("#777777") // Gray
	colorSuccess   = lipgloss.Color("#43BF6D") // Green
	colorError     = lipgloss.Color("#FF5F5F") // Red

	styleWindow = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorPrimary).
			Align(lipgloss.Center)

	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorSubtext).
			Padding(0, 1)

	styleTitle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(colorText).
			Padding(0, 1).
			Bold(true)

	styleAppTitle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true).
			Padding(0, 1).
			Align(lipgloss.Center)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Width(12)

	styleValue = lipgloss.NewStyle().
			Foreground(colorText)

	styleRunning = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	styleStopped = lipgloss.NewStyle().
			Foreground(colorSubtext)

	styleError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	styleNotes = lipgloss.NewStyle().
			Foreground(colorSecondary)

	styleHelp = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Padding(0, 1)
)
