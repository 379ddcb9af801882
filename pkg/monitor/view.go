package monitor

import (
	"fmt"
	"strings"

	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/reconcile"
)

func (m *Model) View() string {
	var sb strings.Builder

	title := fmt.Sprintf(" lk · %s ", m.entity)
	if !m.lastRefresh.IsZero() {
		title += subtleStyle.Render(fmt.Sprintf("refreshed %s", m.lastRefresh.Format("15:04:05")))
	}
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n\n")

	if len(m.slots) == 0 {
		sb.WriteString(subtleStyle.Render("  No codes yet. Press r to read the lock."))
		sb.WriteString("\n")
	}
	for i, sum := range m.slots {
		line := m.slotLine(sum)
		if i == m.cursor && m.editor == nil {
			line = selectedRowStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		if m.editor != nil && m.editor.slot == sum.Slot {
			sb.WriteString(m.editorView())
			sb.WriteString("\n")
		}
	}

	if m.showLog {
		sb.WriteString("\n")
		sb.WriteString(m.logView())
	}

	sb.WriteString("\n")
	switch {
	case m.confirm == confirmOverwrite:
		sb.WriteString(statusStyle.Render(fmt.Sprintf(
			"Slot %d holds an unrecognized code. Overwrite it? (y/n)", m.pendingIn.Slot)))
	case m.confirm == confirmClear:
		if sum, ok := m.selected(); ok {
			sb.WriteString(statusStyle.Render(fmt.Sprintf("Clear slot %d? (y/n)", sum.Slot)))
		}
	case m.err != nil:
		sb.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	case m.status != "":
		sb.WriteString(statusStyle.Render(m.status))
	}
	sb.WriteString("\n")
	sb.WriteString(m.footer())
	return sb.String()
}

func (m *Model) slotLine(sum reconcile.SlotSummary) string {
	name := sum.Name
	if name == "" {
		name = "(empty)"
	}
	code := maskCode(sum.Code)
	if m.showCodes {
		code = sum.Code
		if code == "" {
			code = "-"
		}
	}

	parts := []string{
		titleStyle.Render(fmt.Sprintf(" %2d", sum.Slot)),
		fmt.Sprintf("%-20s", name),
		fmt.Sprintf("%-12s", code),
		fmt.Sprintf("%-4s", sum.CodeType),
		formatStatusWord(sum.Status),
		formatSync(sum.State),
	}
	if len(sum.Unsaved) > 0 {
		parts = append(parts, unsavedStyle.Render("●"))
	}
	return strings.Join(parts, "  ")
}

func maskCode(code string) string {
	if code == "" {
		return "-"
	}
	if len(code) <= 2 {
		return strings.Repeat("*", len(code))
	}
	return strings.Repeat("*", len(code)-2) + code[len(code)-2:]
}

func (m *Model) editorView() string {
	e := m.editor
	label := func(idx int, text string) string {
		if e.focus == idx {
			return focusedLabelStyle.Render("> " + text)
		}
		return "  " + text
	}
	toggle := func(on bool, yes, no string) string {
		if on {
			return yes
		}
		return no
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s %s\n", label(fieldName, "Name:   "), e.inputs[fieldName].View()))
	sb.WriteString(fmt.Sprintf("%s %s\n", label(fieldCode, "Code:   "), e.inputs[fieldCode].View()))
	sb.WriteString(fmt.Sprintf("%s %s\n", label(fieldType, "Type:   "), toggle(e.codeType == models.CodeTypeFob, "fob", "pin")))
	sb.WriteString(fmt.Sprintf("%s %s\n", label(fieldEnabled, "State:  "), toggle(e.enabled, "enabled", "disabled")))
	sb.WriteString(fmt.Sprintf("%s %s\n", label(fieldStart, "From:   "), e.inputs[fieldStart].View()))
	sb.WriteString(fmt.Sprintf("%s %s\n", label(fieldEnd, "Until:  "), e.inputs[fieldEnd].View()))
	sb.WriteString(fmt.Sprintf("%s %s\n", label(fieldLimit, "Limit:  "), e.inputs[fieldLimit].View()))
	if e.errText != "" {
		sb.WriteString(errorStyle.Render(e.errText))
		sb.WriteString("\n")
	}
	sb.WriteString(helpStyle.Render("tab next · space toggle · enter save · esc close"))
	return editorStyle.Render(sb.String())
}

func (m *Model) logView() string {
	entries := m.log.Entries()
	const show = 8
	if len(entries) > show {
		entries = entries[len(entries)-show:]
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Reconciliation log"))
	sb.WriteString("\n")
	if len(entries) == 0 {
		sb.WriteString(subtleStyle.Render("nothing yet"))
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s %s", e.Time.Format("15:04:05"), e.Message)
		if e.Slot > 0 {
			line = fmt.Sprintf("%s [%d] %s", e.Time.Format("15:04:05"), e.Slot, e.Message)
		}
		sb.WriteString(subtleStyle.Render(line))
		sb.WriteString("\n")
	}
	return logPaneStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

func (m *Model) footer() string {
	if m.editor != nil {
		return helpStyle.Render(" editing: tab/shift+tab move · enter save · esc close")
	}
	return helpStyle.Render(" j/k move · enter edit · r pull · p push · d clear · c codes · l log · q quit")
}
