package monitor

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/lk/internal/hub"
	"github.com/marcus/lk/internal/reconcile"
)

// Message types flowing into Update.
type (
	slotsLoadedMsg []reconcile.SlotSummary

	opDoneMsg struct {
		status string
		err    error
	}

	saveDoneMsg struct {
		in  reconcile.SaveInput
		res reconcile.SaveResult
		err error
	}

	progressMsg struct {
		ev hub.SyncProgress
		ok bool
	}

	tickMsg time.Time
)

const refreshEvery = 30 * time.Second

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// loadSlots fetches the merged slot overview.
func (m *Model) loadSlots() tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		sums, err := engine.Overview(context.Background())
		if err != nil {
			return opDoneMsg{err: err}
		}
		return slotsLoadedMsg(sums)
	}
}

// runPull asks the lock for every slot and reconciles the result.
func (m *Model) runPull() tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		res, err := engine.Refresh(context.Background())
		if err != nil {
			return opDoneMsg{err: err}
		}
		if !res.Confirmed {
			return opDoneMsg{status: "Pull finished; lock matched the cache"}
		}
		return opDoneMsg{status: "Pull finished"}
	}
}

// runPush writes one slot to the lock.
func (m *Model) runPush(slot int) tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		if err := engine.Push(context.Background(), slot); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{status: "Pushed slot to lock"}
	}
}

// runSave submits the editor's values.
func (m *Model) runSave(in reconcile.SaveInput, override bool) tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		var (
			res reconcile.SaveResult
			err error
		)
		if override {
			res, err = engine.SaveWithOverride(context.Background(), in)
		} else {
			res, err = engine.Save(context.Background(), in)
		}
		return saveDoneMsg{in: in, res: res, err: err}
	}
}

// runClear removes a slot.
func (m *Model) runClear(slot int) tea.Cmd {
	engine := m.engine
	return func() tea.Msg {
		if err := engine.Clear(context.Background(), slot); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{status: "Slot cleared"}
	}
}

// waitProgress blocks on the hub's pull-progress events.
func (m *Model) waitProgress() tea.Cmd {
	events := m.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		return progressMsg{ev: ev, ok: ok}
	}
}
