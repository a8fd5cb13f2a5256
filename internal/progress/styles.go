package progress

import "github.com/charmbracelet/lipgloss"

var (
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	mutedColor     = lipgloss.Color("#6B7280")
	highlightColor = lipgloss.Color("#3B82F6")
)

var (
	locationStyle  = lipgloss.NewStyle().Bold(true)
	transportStyle = lipgloss.NewStyle().Foreground(highlightColor)
	summaryStyle   = lipgloss.NewStyle().Foreground(successColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	doneStyle    = lipgloss.NewStyle().Foreground(successColor)
	partialStyle = lipgloss.NewStyle().Foreground(warningColor)
	unnamedStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

// stateStyle picks the style of a file state cell.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "done":
		return doneStyle
	case "partial":
		return partialStyle
	default:
		return unnamedStyle
	}
}
