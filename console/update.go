package console

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model interface
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case TickMsg:
		return m, tea.Batch(pollStatus(m.Client), tickCmd())
	case StatusUpdateMsg:
		return m.handleStatus(msg)
	case RunFinishedMsg:
		return m.handleRunFinished(msg)
	case QuotaResetMsg:
		return m.handleQuotaReset(msg)
	}
	return m, nil
}

// handleKeyPress processes keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.Scopes)-1 {
			m.Cursor++
		}
	case "r", "enter":
		sv, ok := m.Selected()
		if !ok || m.Running[sv.Source.ScopeID] {
			return m, nil
		}
		m.Running = copyRunning(m.Running)
		m.Running[sv.Source.ScopeID] = true
		m = m.AddLog("run requested: " + sv.Source.ScopeID)
		return m, runScope(m.Client, sv.Source.ScopeID)
	case "x":
		var cmds []tea.Cmd
		for _, q := range m.Quotas {
			if q.Exceeded {
				cmds = append(cmds, resetQuota(m.Client, q.Provider))
			}
		}
		if len(cmds) == 0 {
			return m.AddLog("no provider is over quota"), nil
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m Model) handleStatus(msg StatusUpdateMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.Connected = false
		m.Err = msg.Err
		return m, nil
	}
	m.Connected = true
	m.Err = nil
	m.Scopes = msg.Scopes
	m.Quotas = msg.Quotas
	if m.Cursor >= len(m.Scopes) {
		m.Cursor = max(len(m.Scopes)-1, 0)
	}
	return m, nil
}

func (m Model) handleRunFinished(msg RunFinishedMsg) (tea.Model, tea.Cmd) {
	m.Running = copyRunning(m.Running)
	delete(m.Running, msg.ScopeID)
	if msg.Err != nil {
		return m.AddLog(fmt.Sprintf("%s failed: %v", msg.ScopeID, msg.Err)), pollStatus(m.Client)
	}
	r := msg.Result
	m = m.AddLog(fmt.Sprintf("%s: %d created, %d updated, %d skipped, %d failed",
		msg.ScopeID, r.Created, r.Updated, r.Skipped, r.Failed))
	return m, pollStatus(m.Client)
}

func (m Model) handleQuotaReset(msg QuotaResetMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		return m.AddLog(fmt.Sprintf("quota reset %s failed: %v", msg.Provider, msg.Err)), nil
	}
	return m.AddLog("quota reset: " + msg.Provider), pollStatus(m.Client)
}

// Model values are copied by bubbletea, so the map is copied before writes.
func copyRunning(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
