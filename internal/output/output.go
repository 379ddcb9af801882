// Package output provides styled terminal output helpers (success, error,
// warning, slot formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/reconcile"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	syncStyles   = map[models.SyncState]lipgloss.Style{
		models.Synced:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.NeedsPush:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SyncUnknown: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeConflict     = "conflict"
	ErrCodeHubError     = "hub_error"
	ErrCodeCacheError   = "cache_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]map[string]string{
		"error": {"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// SyncBadge returns a sync state indicator with symbol,
// e.g. "✓ synced", "↑ needs-push", "? unknown".
func SyncBadge(state models.SyncState) string {
	symbols := map[models.SyncState]string{
		models.Synced:      "✓",
		models.NeedsPush:   "↑",
		models.SyncUnknown: "?",
	}
	symbol, ok := symbols[state]
	if !ok {
		symbol = "?"
	}
	style, hasStyle := syncStyles[state]
	if hasStyle {
		return style.Render(fmt.Sprintf("%s %s", symbol, state))
	}
	return fmt.Sprintf("%s %s", symbol, state)
}

// MaskCode hides all but the last two digits of a code.
func MaskCode(code string) string {
	if code == "" {
		return "-"
	}
	if len(code) <= 2 {
		return strings.Repeat("*", len(code))
	}
	return strings.Repeat("*", len(code)-2) + code[len(code)-2:]
}

// FormatStatus renders the cached slot status as a word.
func FormatStatus(status int) string {
	switch status {
	case models.StatusEnabled:
		return successStyle.Render("enabled")
	case models.StatusDisabled:
		return subtleStyle.Render("disabled")
	default:
		return subtleStyle.Render("available")
	}
}

// FormatSlotLine formats a slot summary in short single-line format.
func FormatSlotLine(s reconcile.SlotSummary, showCodes bool) string {
	name := s.Name
	if name == "" {
		name = subtleStyle.Render("(empty)")
	}
	code := MaskCode(s.Code)
	if showCodes {
		code = s.Code
		if code == "" {
			code = "-"
		}
	}

	parts := []string{
		titleStyle.Render(fmt.Sprintf("%2d", s.Slot)),
		fmt.Sprintf("%-20s", name),
		fmt.Sprintf("%-12s", code),
		fmt.Sprintf("%-4s", s.CodeType),
		FormatStatus(s.Status),
		SyncBadge(s.State),
	}
	if len(s.Unsaved) > 0 {
		parts = append(parts, warningStyle.Render("● unsaved"))
	}
	return strings.Join(parts, "  ")
}

// FormatSlotLong formats a slot summary with every detail on its own line.
func FormatSlotLong(s reconcile.SlotSummary, showCodes bool) string {
	var sb strings.Builder

	name := s.Name
	if name == "" {
		name = "(empty)"
	}
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Slot %d: %s", s.Slot, name)))
	sb.WriteString("\n")

	code := MaskCode(s.Code)
	if showCodes {
		code = s.Code
	}
	sb.WriteString(fmt.Sprintf("Code: %s (%s)\n", code, s.CodeType))
	sb.WriteString(fmt.Sprintf("Status: %s | Sync: %s\n", FormatStatus(s.Status), SyncBadge(s.State)))

	if sched := FormatSchedule(s.Schedule); sched != "" {
		sb.WriteString(fmt.Sprintf("Schedule: %s\n", sched))
	}
	if s.UsageLimit != nil {
		sb.WriteString(fmt.Sprintf("Usage: %d of %d\n", s.UsageCount, *s.UsageLimit))
	} else if s.UsageCount > 0 {
		sb.WriteString(fmt.Sprintf("Usage: %d\n", s.UsageCount))
	}
	if !s.Reported {
		sb.WriteString(warningStyle.Render("Not reported by the hub; local cache only") + "\n")
	}
	if len(s.Unsaved) > 0 {
		fields := make([]string, len(s.Unsaved))
		for i, f := range s.Unsaved {
			fields[i] = string(f)
		}
		sb.WriteString(warningStyle.Render(fmt.Sprintf("Unsaved edits: %s", strings.Join(fields, ", "))) + "\n")
	}
	return sb.String()
}

// FormatSchedule renders a validity window, empty string when unbounded.
func FormatSchedule(s models.Schedule) string {
	if s.IsZero() {
		return ""
	}
	format := func(t *time.Time) string {
		if t == nil {
			return "any time"
		}
		return t.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%s until %s", format(s.Start), format(s.End))
}

// ListHeader returns the column header matching FormatSlotLine.
func ListHeader() string {
	return subtleStyle.Render(strings.Join([]string{
		" #",
		fmt.Sprintf("%-20s", "NAME"),
		fmt.Sprintf("%-12s", "CODE"),
		fmt.Sprintf("%-4s", "TYPE"),
		"STATUS",
		"SYNC",
	}, "  "))
}
