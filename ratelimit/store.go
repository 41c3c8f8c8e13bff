package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store holds the shared window and quota state. Implementations must make
// Reserve an atomic read-modify-write so concurrent workers cannot jointly
// exceed the budget.
type Store interface {
	// Reserve prunes timestamps older than window and records now when fewer
	// than max remain. Otherwise it records nothing and returns how long the
	// caller must wait: window - (now - oldest) + 1s.
	Reserve(ctx context.Context, provider string, now time.Time, max int, window time.Duration) (time.Duration, error)
	QuotaExceeded(ctx context.Context, provider, day string) (bool, error)
	SetQuotaExceeded(ctx context.Context, provider, day string, until time.Time) error
	ResetQuota(ctx context.Context, provider, day string) error
	// WindowLen reports the number of timestamps currently held.
	WindowLen(ctx context.Context, provider string) (int, error)
}

// MemoryStore keeps state in process. A single mutex serializes every
// read-modify-write.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	quota   map[string]time.Time // provider|day -> expiry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store. now is used to expire
// quota flags; nil means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		windows: make(map[string][]time.Time),
		quota:   make(map[string]time.Time),
		now:     now,
	}
}

func (m *MemoryStore) Reserve(_ context.Context, provider string, now time.Time, max int, window time.Duration) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := prune(m.windows[provider], now, window)
	if len(ts) >= max {
		m.windows[provider] = ts
		return window - now.Sub(ts[0]) + time.Second, nil
	}
	m.windows[provider] = append(ts, now)
	return 0, nil
}

func (m *MemoryStore) QuotaExceeded(_ context.Context, provider, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := provider + "|" + day
	until, ok := m.quota[key]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.quota, key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) SetQuotaExceeded(_ context.Context, provider, day string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota[provider+"|"+day] = until
	return nil
}

func (m *MemoryStore) ResetQuota(_ context.Context, provider, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quota, provider+"|"+day)
	return nil
}

func (m *MemoryStore) WindowLen(_ context.Context, provider string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows[provider]), nil
}

// prune drops timestamps older than window relative to now. ts is ordered.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := 0
	for cut < len(ts) && now.Sub(ts[cut]) >= window {
		cut++
	}
	return ts[cut:]
}
