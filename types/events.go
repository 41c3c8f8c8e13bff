package types

import "time"

// EventKind names an event published by the ingestion side.
type EventKind string

const (
	ContentIngested  EventKind = "content.ingested"
	TrendFetched     EventKind = "trend.fetched"
	TagSyncRequested EventKind = "tagsync.requested"
)

// Event is published synchronously after a successful commit.
// AllowImage carries the batch image allowance to the augmentation stage.
type Event struct {
	Kind       EventKind `json:"kind"`
	ScopeID    string    `json:"scope_id,omitempty"`
	ContentID  string    `json:"content_id,omitempty"`
	TrendID    string    `json:"trend_id,omitempty"`
	AllowImage bool      `json:"allow_image,omitempty"`
	Tag        string    `json:"tag,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Job is one durable unit of work: a single listener applied to one event.
type Job struct {
	ID         string    `json:"id"`
	Listener   string    `json:"listener"`
	Event      Event     `json:"event"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	// NotBefore delays a retry; zero runs the job at once.
	NotBefore time.Time `json:"not_before"`
}
