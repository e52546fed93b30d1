package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/JohnDeved/mediagrid/internal/media"
)

// Hex values are also painted cell by cell on the grid canvas.
const (
	hexPrimary   = "#7C3AED"
	hexSecondary = "#06B6D4"
	hexMuted     = "#6B7280"
	hexBorder    = "#4B5563"
	hexText      = "#D1D5DB"
	hexCardBg    = "#1F2937"
	hexError     = "#EF4444"
	hexSuccess   = "#10B981"
	hexWarning   = "#F59E0B"
	hexLabelText = "#111827"
)

var (
	colorPrimary   = lipgloss.Color(hexPrimary)
	colorSecondary = lipgloss.Color(hexSecondary)
	colorSuccess   = lipgloss.Color(hexSuccess)
	colorWarning   = lipgloss.Color(hexWarning)
	colorError     = lipgloss.Color(hexError)
	colorMuted     = lipgloss.Color(hexMuted)
	colorHighlight = lipgloss.Color("#374151")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	breadcrumbStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	selectedStyle = lipgloss.NewStyle().
			Background(colorHighlight).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	normalStyle = lipgloss.NewStyle().
			Padding(0, 1)

	dirStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(hexText))

	sizeStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(10).
			Align(lipgloss.Right)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#111827")).
			Foreground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#374151")).
				Foreground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	suspendedStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Background(lipgloss.Color("#1E3A5F")).
			Padding(0, 1)

	progressBarFilled = lipgloss.NewStyle().
				Foreground(colorSuccess)

	progressBarEmpty = lipgloss.NewStyle().
				Foreground(colorMuted)
)

// extLabelStyle renders the extension label of a file card.
func extLabelStyle(ext string) lipgloss.Style {
	return lipgloss.NewStyle().
		Background(lipgloss.Color(media.ExtColor(ext))).
		Foreground(lipgloss.Color(hexLabelText)).
		Bold(true)
}
