// ABOUTME: Defines lipgloss style constants for the TUI panels, run status colors, and timeline formatting.
// ABOUTME: Provides StyleForStatus and StatusGlyph to map run statuses to their display treatment.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/watchtower/runstate"
)

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	// Run status colors
	QueuedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	CancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	// Timeline event colors
	LogTimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	LogEventStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	LogErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	LogSuccessStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	LogStageStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	GroupCountStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	// Stream-failure banner
	BannerStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(0, 1)

	// Tree panel accents
	TreeZoneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// StyleForStatus returns the appropriate lipgloss style for a run status.
func StyleForStatus(status runstate.Status) lipgloss.Style {
	switch status {
	case runstate.StatusQueued:
		return QueuedStyle
	case runstate.StatusRunning:
		return RunningStyle
	case runstate.StatusCompleted:
		return CompletedStyle
	case runstate.StatusFailed:
		return FailedStyle
	case runstate.StatusCancelled:
		return CancelledStyle
	default:
		return QueuedStyle
	}
}

// StatusGlyph returns a bracket-style marker for a run status.
func StatusGlyph(status runstate.Status) string {
	switch status {
	case runstate.StatusQueued:
		return "[ ]"
	case runstate.StatusRunning:
		return "[~]"
	case runstate.StatusCompleted:
		return "[*]"
	case runstate.StatusFailed:
		return "[!]"
	case runstate.StatusCancelled:
		return "[-]"
	default:
		return "[?]"
	}
}

// SpinnerFrames contains the Braille-dot animation frames for the running
// indicator.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
