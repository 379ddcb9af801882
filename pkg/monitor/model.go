// Package monitor is the interactive TUI for managing lock code slots. It
// shows every slot with its sync state, refreshes from the hub periodically,
// and opens an inline editor per slot; fields being edited are leased so a
// background refresh never overwrites what the user is typing.
package monitor

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/lk/internal/audit"
	"github.com/marcus/lk/internal/hub"
	"github.com/marcus/lk/internal/reconcile"
)

// confirmKind names the pending confirmation, if any.
type confirmKind int

const (
	confirmNone confirmKind = iota
	confirmOverwrite
	confirmClear
)

// Model is the main Bubble Tea model for the monitor TUI
type Model struct {
	engine *reconcile.Engine
	log    *audit.Log
	entity string
	events <-chan hub.SyncProgress

	// Window dimensions
	width  int
	height int

	// Slot data
	slots       []reconcile.SlotSummary
	cursor      int
	lastRefresh time.Time

	// UI state
	editor    *editorState
	confirm   confirmKind
	pendingIn reconcile.SaveInput // save awaiting overwrite confirmation
	showCodes bool
	showLog   bool
	busy      bool
	status    string
	err       error
}

// New creates a monitor model. events may be nil when the hub subscription
// failed; the TUI degrades to poll-only updates.
func New(engine *reconcile.Engine, log *audit.Log, entity string, events <-chan hub.SyncProgress) *Model {
	return &Model{
		engine: engine,
		log:    log,
		entity: entity,
		events: events,
	}
}

// Run starts the TUI and blocks until the user quits.
func Run(engine *reconcile.Engine, log *audit.Log, entity string, events <-chan hub.SyncProgress) error {
	p := tea.NewProgram(New(engine, log, entity, events), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadSlots(), m.waitProgress(), tick())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case slotsLoadedMsg:
		m.slots = msg
		m.lastRefresh = time.Now()
		m.err = nil
		if m.cursor >= len(m.slots) && len(m.slots) > 0 {
			m.cursor = len(m.slots) - 1
		}
		return m, nil

	case opDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.status = msg.status
		return m, m.loadSlots()

	case saveDoneMsg:
		m.busy = false
		if msg.err != nil {
			if m.editor != nil {
				m.editor.errText = msg.err.Error()
			} else {
				m.err = msg.err
			}
			return m, nil
		}
		if msg.res.Conflict {
			m.confirm = confirmOverwrite
			m.pendingIn = msg.in
			return m, nil
		}
		m.status = fmt.Sprintf("Slot %d saved (%s)", msg.res.Slot, msg.res.State)
		if m.editor != nil {
			m.editor.close(m)
			m.editor = nil
		}
		return m, m.loadSlots()

	case progressMsg:
		if !msg.ok {
			m.events = nil
			return m, nil
		}
		switch msg.ev.Action {
		case hub.ActionStart:
			m.status = fmt.Sprintf("Scanning %d slots...", msg.ev.TotalSlots)
		case hub.ActionProgress:
			m.status = fmt.Sprintf("Scanning slot %d/%d", msg.ev.CurrentSlot, msg.ev.TotalSlots)
		case hub.ActionComplete:
			m.status = fmt.Sprintf("Scan complete: %d codes (%d new, %d updated)",
				msg.ev.CodesFound, msg.ev.CodesNew, msg.ev.CodesUpdated)
		}
		return m, m.waitProgress()

	case tickMsg:
		// Periodic background reconciliation of the read model.
		return m, tea.Batch(m.loadSlots(), tick())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Confirmation dialogs swallow everything except their answer keys.
	if m.confirm != confirmNone {
		return m.handleConfirmKey(msg)
	}

	if m.editor != nil {
		switch msg.String() {
		case "esc":
			m.editor.close(m)
			m.editor = nil
			return m, m.loadSlots()
		case "ctrl+c":
			return m, tea.Quit
		default:
			return m, m.editor.handleKey(m, msg)
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.slots)-1 {
			m.cursor++
		}
	case "enter", "e":
		if sum, ok := m.selected(); ok {
			m.editor = m.newEditor(sum)
		}
	case "r":
		if !m.busy {
			m.busy = true
			m.status = "Pulling codes from lock..."
			return m, m.runPull()
		}
	case "p":
		if sum, ok := m.selected(); ok && !m.busy {
			m.busy = true
			m.status = fmt.Sprintf("Pushing slot %d...", sum.Slot)
			return m, m.runPush(sum.Slot)
		}
	case "d":
		if _, ok := m.selected(); ok {
			m.confirm = confirmClear
		}
	case "c":
		m.showCodes = !m.showCodes
	case "l":
		m.showLog = !m.showLog
	}
	return m, nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		kind := m.confirm
		m.confirm = confirmNone
		switch kind {
		case confirmOverwrite:
			m.busy = true
			m.status = "Overwriting occupied slot..."
			return m, m.runSave(m.pendingIn, true)
		case confirmClear:
			if sum, ok := m.selected(); ok {
				m.busy = true
				return m, m.runClear(sum.Slot)
			}
		}
	case "n", "N", "esc":
		m.confirm = confirmNone
		m.status = "Cancelled"
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) selected() (reconcile.SlotSummary, bool) {
	if m.cursor < 0 || m.cursor >= len(m.slots) {
		return reconcile.SlotSummary{}, false
	}
	return m.slots[m.cursor], true
}
