package console

import (
	"time"

	"pcaview/api"
	"pcaview/ingestion"
)

// Messages for the tea program (polling-based)

// StatusUpdateMsg is sent when scopes and quotas were polled
type StatusUpdateMsg struct {
	Scopes []api.ScopeView
	Quotas []api.QuotaView
	Err    error
}

// TickMsg is sent periodically to trigger polling
type TickMsg struct {
	Time time.Time
}

// RunFinishedMsg is sent when a manual scope run returns
type RunFinishedMsg struct {
	ScopeID string
	Result  *ingestion.Result
	Err     error
}

// QuotaResetMsg is sent when a quota reset returns
type QuotaResetMsg struct {
	Provider string
	Err      error
}
