package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pcaview/types"

	"go.uber.org/zap"
)

// Limiter guards one provider with a sliding window and a day-scoped quota
// flag. A single instance per provider is shared by all workers.
type Limiter struct {
	provider string
	max      int
	window   time.Duration
	store    Store
	clock    Clock
	loc      *time.Location
	log      *zap.Logger
}

// Options configures a Limiter. Zero values pick the defaults.
type Options struct {
	Max      int
	Window   time.Duration
	Store    Store
	Clock    Clock
	Location *time.Location
	Logger   *zap.Logger
}

// New creates a limiter for provider.
func New(provider string, opts Options) *Limiter {
	if opts.Max <= 0 {
		opts.Max = 20
	}
	if opts.Window <= 0 {
		opts.Window = 60 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore(opts.Clock.Now)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Limiter{
		provider: provider,
		max:      opts.Max,
		window:   opts.Window,
		store:    opts.Store,
		clock:    opts.Clock,
		loc:      opts.Location,
		log:      opts.Logger.With(zap.String("provider", provider)),
	}
}

// Provider returns the provider name.
func (l *Limiter) Provider() string { return l.provider }

// Acquire blocks until a slot is free and records the call. If the quota flag
// is set for today it returns *types.QuotaExceededError immediately.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		now := l.clock.Now()
		day := dayKey(now, l.loc)
		exceeded, err := l.store.QuotaExceeded(ctx, l.provider, day)
		if err != nil {
			return fmt.Errorf("quota check %s: %w", l.provider, err)
		}
		if exceeded {
			return &types.QuotaExceededError{Provider: l.provider, Day: day}
		}

		wait, err := l.store.Reserve(ctx, l.provider, now, l.max, l.window)
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}

		l.log.Info("rate window full, waiting", zap.Duration("wait", wait))
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// MarkExceeded sets today's quota flag; it expires at the next midnight.
func (l *Limiter) MarkExceeded(ctx context.Context) error {
	now := l.clock.Now()
	day := dayKey(now, l.loc)
	l.log.Warn("quota exceeded, provider disabled for the day", zap.String("day", day))
	return l.store.SetQuotaExceeded(ctx, l.provider, day, endOfDay(now, l.loc))
}

// Reset clears today's quota flag.
func (l *Limiter) Reset(ctx context.Context) error {
	return l.store.ResetQuota(ctx, l.provider, dayKey(l.clock.Now(), l.loc))
}

// Exceeded reports whether today's quota flag is set.
func (l *Limiter) Exceeded(ctx context.Context) (bool, error) {
	return l.store.QuotaExceeded(ctx, l.provider, dayKey(l.clock.Now(), l.loc))
}

// Do acquires a slot, runs fn and sets the quota flag when fn reports a quota
// rejection.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	if types.IsQuotaExceeded(err) {
		if markErr := l.MarkExceeded(ctx); markErr != nil {
			l.log.Error("failed to set quota flag", zap.Error(markErr))
		}
	}
	return err
}

// Set is the registry of per-provider limiters.
type Set struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewSet returns an empty registry.
func NewSet() *Set {
	return &Set{limiters: make(map[string]*Limiter)}
}

// Add registers a limiter under its provider name.
func (s *Set) Add(l *Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiters[l.provider] = l
}

// Get returns the limiter for provider.
func (s *Set) Get(provider string) (*Limiter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.limiters[provider]
	return l, ok
}

// Providers lists registered provider names in order.
func (s *Set) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.limiters))
	for p := range s.limiters {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
