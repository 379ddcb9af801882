package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/lk/internal/form"
	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/reconcile"
)

// Editor field indexes, in tab order.
const (
	fieldName = iota
	fieldCode
	fieldType
	fieldEnabled
	fieldStart
	fieldEnd
	fieldLimit
	fieldCount
)

var editorLeases = map[int]form.Field{
	fieldName:    form.FieldName,
	fieldCode:    form.FieldCode,
	fieldType:    form.FieldCodeType,
	fieldEnabled: form.FieldStatus,
	fieldStart:   form.FieldSchedule,
	fieldEnd:     form.FieldSchedule,
	fieldLimit:   form.FieldUsageLimit,
}

const timeLayout = "2006-01-02 15:04"

// editorState is the expanded per-slot editor. While it is open the slot is
// marked expanded in the form store, and the focused field holds an edit
// lease so background reconciliation cannot clobber it.
type editorState struct {
	slot     int
	inputs   map[int]textinput.Model
	focus    int
	codeType models.CodeType
	enabled  bool
	errText  string
}

// newEditor opens an editor for the slot, seeded from the current summary.
func (m *Model) newEditor(sum reconcile.SlotSummary) *editorState {
	e := &editorState{
		slot:     sum.Slot,
		inputs:   make(map[int]textinput.Model, 5),
		codeType: sum.CodeType,
		enabled:  sum.Status != models.StatusDisabled,
	}
	if e.codeType == "" {
		e.codeType = models.CodeTypePIN
	}

	mk := func(placeholder, value string, limit int) textinput.Model {
		ti := textinput.New()
		ti.Placeholder = placeholder
		ti.SetValue(value)
		ti.CharLimit = limit
		ti.Prompt = ""
		return ti
	}
	e.inputs[fieldName] = mk("name", sum.Name, 40)
	e.inputs[fieldCode] = mk("4-10 digits", sum.Code, models.MaxCodeLength)
	e.inputs[fieldStart] = mk(timeLayout, formatTime(sum.Schedule.Start), 16)
	e.inputs[fieldEnd] = mk(timeLayout, formatTime(sum.Schedule.End), 16)
	limit := ""
	if sum.UsageLimit != nil {
		limit = strconv.Itoa(*sum.UsageLimit)
	}
	e.inputs[fieldLimit] = mk("no limit", limit, 5)

	m.engine.Form().Expand(sum.Slot)
	e.setFocus(m, fieldName)
	return e
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

// setFocus moves the editor focus, swapping the edit lease with it.
func (e *editorState) setFocus(m *Model, target int) {
	store := m.engine.Form()
	store.Release(e.slot, editorLeases[e.focus])

	if in, ok := e.inputs[e.focus]; ok {
		in.Blur()
		e.inputs[e.focus] = in
	}
	e.focus = target
	if in, ok := e.inputs[target]; ok {
		in.Focus()
		e.inputs[target] = in
	}
	store.Lease(e.slot, editorLeases[target])
}

func (e *editorState) nextField(m *Model) { e.setFocus(m, (e.focus+1)%fieldCount) }
func (e *editorState) prevField(m *Model) { e.setFocus(m, (e.focus+fieldCount-1)%fieldCount) }

// close collapses the editor, releasing leases and the expanded mark.
func (e *editorState) close(m *Model) {
	m.engine.Form().Collapse(e.slot)
}

// handleKey routes a key press into the editor. It returns a command when the
// key triggered a save.
func (e *editorState) handleKey(m *Model, msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "down":
		e.nextField(m)
		return nil
	case "shift+tab", "up":
		e.prevField(m)
		return nil
	case "enter", "ctrl+s":
		return e.submit(m, false)
	}

	switch e.focus {
	case fieldType:
		if msg.String() == " " || msg.String() == "left" || msg.String() == "right" {
			if e.codeType == models.CodeTypePIN {
				e.codeType = models.CodeTypeFob
			} else {
				e.codeType = models.CodeTypePIN
			}
		}
	case fieldEnabled:
		if msg.String() == " " || msg.String() == "left" || msg.String() == "right" {
			e.enabled = !e.enabled
		}
	default:
		in := e.inputs[e.focus]
		var cmd tea.Cmd
		in, cmd = in.Update(msg)
		e.inputs[e.focus] = in
		e.mirror(m)
		return cmd
	}
	e.mirror(m)
	return nil
}

// mirror writes the focused field's current value through to the form store
// so it survives even if the editor never submits. Schedule and limit inputs
// mirror only once they parse; a half-typed timestamp stays local.
func (e *editorState) mirror(m *Model) {
	store := m.engine.Form()
	switch e.focus {
	case fieldName:
		store.SetName(e.slot, e.inputs[fieldName].Value())
	case fieldCode:
		store.SetCode(e.slot, e.inputs[fieldCode].Value())
	case fieldType:
		store.SetCodeType(e.slot, e.codeType)
	case fieldEnabled:
		status := models.StatusDisabled
		if e.enabled {
			status = models.StatusEnabled
		}
		store.SetStatus(e.slot, status)
	case fieldStart, fieldEnd:
		e.mirrorSchedule(store)
	case fieldLimit:
		v := strings.TrimSpace(e.inputs[fieldLimit].Value())
		if v == "" {
			store.SetUsageLimit(e.slot, nil)
			return
		}
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			store.SetUsageLimit(e.slot, &n)
		}
	}
}

func (e *editorState) mirrorSchedule(store *form.Store) {
	var sched models.Schedule
	if v := strings.TrimSpace(e.inputs[fieldStart].Value()); v != "" {
		t, err := time.ParseInLocation(timeLayout, v, time.Local)
		if err != nil {
			return
		}
		sched.Start = &t
	}
	if v := strings.TrimSpace(e.inputs[fieldEnd].Value()); v != "" {
		t, err := time.ParseInLocation(timeLayout, v, time.Local)
		if err != nil {
			return
		}
		sched.End = &t
	}
	store.SetSchedule(e.slot, sched)
}

// submit validates the editor and issues a save.
func (e *editorState) submit(m *Model, override bool) tea.Cmd {
	in, err := e.buildInput()
	if err != nil {
		e.errText = err.Error()
		return nil
	}
	e.errText = ""
	return m.runSave(in, override)
}

func (e *editorState) buildInput() (reconcile.SaveInput, error) {
	in := reconcile.SaveInput{
		Slot:     e.slot,
		Name:     strings.TrimSpace(e.inputs[fieldName].Value()),
		Code:     strings.TrimSpace(e.inputs[fieldCode].Value()),
		CodeType: e.codeType,
		Enabled:  e.enabled,
	}

	start := strings.TrimSpace(e.inputs[fieldStart].Value())
	end := strings.TrimSpace(e.inputs[fieldEnd].Value())
	if start != "" || end != "" {
		sched := &models.Schedule{}
		if start != "" {
			t, err := time.ParseInLocation(timeLayout, start, time.Local)
			if err != nil {
				return in, fmt.Errorf("start: want %s", timeLayout)
			}
			sched.Start = &t
		}
		if end != "" {
			t, err := time.ParseInLocation(timeLayout, end, time.Local)
			if err != nil {
				return in, fmt.Errorf("end: want %s", timeLayout)
			}
			sched.End = &t
		}
		in.Schedule = sched
	}

	if v := strings.TrimSpace(e.inputs[fieldLimit].Value()); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return in, fmt.Errorf("limit: want a non-negative number")
		}
		in.UsageLimit = &n
	}
	return in, nil
}
