package console

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// pollStatus creates a command to poll scopes and quotas
func pollStatus(client *Client) tea.Cmd {
	return func() tea.Msg {
		scopes, err := client.Scopes()
		if err != nil {
			return StatusUpdateMsg{Err: err}
		}
		quotas, err := client.Quotas()
		return StatusUpdateMsg{Scopes: scopes, Quotas: quotas, Err: err}
	}
}

// runScope creates a command that runs one scope to completion
func runScope(client *Client, scopeID string) tea.Cmd {
	return func() tea.Msg {
		res, err := client.RunScope(scopeID)
		return RunFinishedMsg{ScopeID: scopeID, Result: res, Err: err}
	}
}

// resetQuota creates a command that clears one provider's quota flag
func resetQuota(client *Client, provider string) tea.Cmd {
	return func() tea.Msg {
		return QuotaResetMsg{Provider: provider, Err: client.ResetQuota(provider)}
	}
}

// tickCmd creates a command that ticks every 2s for polling
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
