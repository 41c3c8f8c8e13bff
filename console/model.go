// Package console is a terminal dashboard for a running pcaview instance:
// scope run states, provider quota flags, manual re-runs and quota resets.
package console

import (
	"time"

	"pcaview/api"

	tea "github.com/charmbracelet/bubbletea"
)

const maxLogs = 10

// Model represents the TUI client state (thin client)
type Model struct {
	Client *Client

	Scopes  []api.ScopeView
	Quotas  []api.QuotaView
	Cursor  int
	Running map[string]bool
	Logs    []string
	Err     error

	// Connection status
	Connected bool
}

// NewModel creates a new TUI model
func NewModel(baseURL string) Model {
	return Model{
		Client:  NewClient(baseURL),
		Running: make(map[string]bool),
	}
}

// Init implements tea.Model interface
func (m Model) Init() tea.Cmd {
	// Start polling immediately
	return tea.Batch(pollStatus(m.Client), tickCmd())
}

// AddLog appends a timestamped line, keeping the last maxLogs.
func (m Model) AddLog(line string) Model {
	m.Logs = append(append([]string(nil), m.Logs...), time.Now().Format("15:04:05")+" "+line)
	if len(m.Logs) > maxLogs {
		m.Logs = m.Logs[len(m.Logs)-maxLogs:]
	}
	return m
}

// Selected returns the scope under the cursor.
func (m Model) Selected() (api.ScopeView, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Scopes) {
		return api.ScopeView{}, false
	}
	return m.Scopes[m.Cursor], true
}
