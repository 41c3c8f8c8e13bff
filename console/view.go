package console

import (
	"fmt"
	"strings"

	"pcaview/scheduler"
)

// View implements tea.Model interface
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("pcaview ingestion console"))
	b.WriteString("\n")

	if !m.Connected {
		msg := "Not connected"
		if m.Err != nil {
			msg += ": " + m.Err.Error()
		}
		b.WriteString(ErrorStyle.Render(msg))
		b.WriteString("\n\n")
	}

	if len(m.Scopes) > 0 {
		b.WriteString(BoxStyle.Render(m.scopeTable()))
		b.WriteString("\n")
	}

	if len(m.Quotas) > 0 {
		var parts []string
		for _, q := range m.Quotas {
			if q.Exceeded {
				parts = append(parts, ErrorStyle.Render(q.Provider+" over quota"))
			} else {
				parts = append(parts, StatusStyle.Render(q.Provider+" ok"))
			}
		}
		b.WriteString("Quota: " + strings.Join(parts, InfoStyle.Render(" | ")))
		b.WriteString("\n\n")
	}

	if len(m.Logs) > 0 {
		b.WriteString(InfoStyle.Render("Recent activity:"))
		b.WriteString("\n")
		for _, l := range m.Logs {
			b.WriteString(InfoStyle.Render("  " + l))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(InfoStyle.Render("↑/↓ select | r run scope | x reset exceeded quotas | q quit"))
	return b.String()
}

func (m Model) scopeTable() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-14s %-10s %7s %7s %7s %6s\n", "SCOPE", "STRATEGY", "STATE", "CREATED", "UPDATED", "SKIPPED", "FAILED")
	for i, sv := range m.Scopes {
		state := string(sv.Status.State)
		if m.Running[sv.Source.ScopeID] {
			state = string(scheduler.StateRunning)
		}
		line := fmt.Sprintf("%-24s %-14s %-10s %7d %7d %7d %6d",
			truncate(sv.Source.ScopeID, 24), sv.Source.Strategy, state,
			sv.Status.Created, sv.Status.Updated, sv.Status.Skipped, sv.Status.Failed)
		switch {
		case i == m.Cursor:
			line = SelectedStyle.Render(line)
		case sv.Status.State == scheduler.StateError:
			line = ErrorStyle.Render(line)
		case state == string(scheduler.StateRunning):
			line = WarnStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
