package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"pcaview/ingestion"
)

// State is the run state of one scope.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
)

// LogEntry represents a single log line with timestamp
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// ScopeStatus is the JSON view of a scope's last run.
type ScopeStatus struct {
	ScopeID      string     `json:"scope_id"`
	State        State      `json:"state"`
	LastStarted  time.Time  `json:"last_started,omitempty"`
	LastFinished time.Time  `json:"last_finished,omitempty"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	Error        string     `json:"error,omitempty"`
	Logs         []LogEntry `json:"logs"`
}

// Tracker holds per-scope run state with thread-safe access. It doubles as the
// busy guard: a scope can only be started once until it finishes.
type Tracker struct {
	mu      sync.RWMutex
	scopes  map[string]*ScopeStatus
	maxLogs int
	now     func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		scopes:  make(map[string]*ScopeStatus),
		maxLogs: 50, // Keep last 50 log entries per scope
		now:     time.Now,
	}
}

func (t *Tracker) get(scopeID string) *ScopeStatus {
	st, ok := t.scopes[scopeID]
	if !ok {
		st = &ScopeStatus{ScopeID: scopeID, State: StateIdle}
		t.scopes[scopeID] = st
	}
	return st
}

// TryStart marks scopeID running. It returns false if a run is in progress.
func (t *Tracker) TryStart(scopeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.get(scopeID)
	if st.State == StateRunning {
		return false
	}
	st.State = StateRunning
	st.LastStarted = t.now()
	st.Error = ""
	t.appendLog(st, "run started")
	return true
}

// Finish records the outcome of a run started with TryStart.
func (t *Tracker) Finish(scopeID string, res ingestion.Result, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.get(scopeID)
	st.LastFinished = t.now()
	st.Created, st.Updated, st.Skipped, st.Failed = res.Created, res.Updated, res.Skipped, res.Failed
	if err != nil {
		st.State = StateError
		st.Error = err.Error()
		t.appendLog(st, fmt.Sprintf("Error: %v", err))
		return
	}
	st.State = StateComplete
	t.appendLog(st, fmt.Sprintf("run finished: %d created, %d updated, %d skipped, %d failed",
		res.Created, res.Updated, res.Skipped, res.Failed))
}

// AddLog adds a log entry to a scope.
func (t *Tracker) AddLog(scopeID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLog(t.get(scopeID), message)
}

// must hold lock
func (t *Tracker) appendLog(st *ScopeStatus, message string) {
	st.Logs = append(st.Logs, LogEntry{Timestamp: t.now(), Message: message})
	if len(st.Logs) > t.maxLogs {
		st.Logs = st.Logs[len(st.Logs)-t.maxLogs:]
	}
}

// Status returns a snapshot of one scope.
func (t *Tracker) Status(scopeID string) (ScopeStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.scopes[scopeID]
	if !ok {
		return ScopeStatus{ScopeID: scopeID, State: StateIdle, Logs: []LogEntry{}}, false
	}
	return snapshot(st), true
}

// Statuses returns snapshots of every known scope ordered by id.
func (t *Tracker) Statuses() []ScopeStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ScopeStatus, 0, len(t.scopes))
	for _, st := range t.scopes {
		out = append(out, snapshot(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScopeID < out[j].ScopeID })
	return out
}

func snapshot(st *ScopeStatus) ScopeStatus {
	cp := *st
	cp.Logs = append([]LogEntry{}, st.Logs...) // Copy slice
	return cp
}
