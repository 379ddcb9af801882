package monitor

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/lk/internal/models"
)

var (
	// Base colors
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true)
	subtleStyle = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle  = lipgloss.NewStyle().Foreground(errorColor)
	statusStyle = lipgloss.NewStyle().Foreground(warningColor)

	selectedRowStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("237")).
				Foreground(lipgloss.Color("255"))

	editorStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	logPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedLabelStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	unsavedStyle      = lipgloss.NewStyle().Foreground(warningColor)

	syncStyles = map[models.SyncState]lipgloss.Style{
		models.Synced:      lipgloss.NewStyle().Foreground(successColor),
		models.NeedsPush:   lipgloss.NewStyle().Foreground(warningColor),
		models.SyncUnknown: lipgloss.NewStyle().Foreground(mutedColor),
	}
	syncSymbols = map[models.SyncState]string{
		models.Synced:      "✓",
		models.NeedsPush:   "↑",
		models.SyncUnknown: "?",
	}
)

// formatSync renders a sync state badge
func formatSync(s models.SyncState) string {
	symbol, ok := syncSymbols[s]
	if !ok {
		symbol = "?"
	}
	style, ok := syncStyles[s]
	if !ok {
		return symbol + " " + s.String()
	}
	return style.Render(symbol + " " + s.String())
}

// formatStatusWord renders the cached slot status
func formatStatusWord(status int) string {
	switch status {
	case models.StatusEnabled:
		return syncStyles[models.Synced].Render("enabled")
	case models.StatusDisabled:
		return subtleStyle.Render("disabled")
	default:
		return subtleStyle.Render("available")
	}
}
