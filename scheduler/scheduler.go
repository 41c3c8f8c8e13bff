// Package scheduler triggers per-scope ingestion runs from cron and from
// manual requests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pcaview/ingestion"
	"pcaview/types"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrBusy is returned when a scope's previous run has not finished.
	ErrBusy = errors.New("scheduler: scope already running")
	// ErrUnknownScope is returned for a scope missing from the source catalog.
	ErrUnknownScope = errors.New("scheduler: unknown scope")
)

// ScopeRunner runs ingestion for one source.
type ScopeRunner interface {
	RunScope(ctx context.Context, src types.SourceDescriptor) (ingestion.Result, error)
}

// Options tunes a Scheduler.
type Options struct {
	// Concurrency caps scopes running at once; 0 means all of them.
	Concurrency int
	Location    *time.Location
	Logger      *zap.Logger
}

type Scheduler struct {
	runner      ScopeRunner
	sources     []types.SourceDescriptor
	tracker     *Tracker
	concurrency int
	log         *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cronID cron.EntryID
}

func New(runner ScopeRunner, sources []types.SourceDescriptor, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{
		runner:      runner,
		sources:     append([]types.SourceDescriptor(nil), sources...),
		tracker:     NewTracker(),
		concurrency: opts.Concurrency,
		log:         opts.Logger.With(zap.String("component", "scheduler")),
		cron:        cron.New(cron.WithLocation(opts.Location)),
	}
}

// Sources returns the configured source catalog.
func (s *Scheduler) Sources() []types.SourceDescriptor {
	return append([]types.SourceDescriptor(nil), s.sources...)
}

func (s *Scheduler) Tracker() *Tracker { return s.tracker }

// Start registers RunAll on schedule and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, func() {
		s.log.Info("cron triggered", zap.Int("scopes", len(s.sources)))
		if err := s.RunAll(ctx); err != nil {
			s.log.Warn("cron run finished with errors", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cronID = id
	s.cron.Start()
	s.log.Info("cron started", zap.String("schedule", schedule))
	return nil
}

// Stop stops the cron loop and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	done := s.cron.Stop()
	s.mu.Unlock()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunAll runs every configured scope concurrently. Scopes still running from a
// previous trigger are skipped. One failing scope does not stop the others;
// the first error is returned.
func (s *Scheduler) RunAll(ctx context.Context) error {
	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for _, src := range s.sources {
		g.Go(func() error {
			_, err := s.run(ctx, src)
			if errors.Is(err, ErrBusy) {
				s.log.Info("scope busy, skipping", zap.String("scope", src.ScopeID))
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// RunScope runs one scope synchronously. Used for manual re-runs.
func (s *Scheduler) RunScope(ctx context.Context, scopeID string) (ingestion.Result, error) {
	for _, src := range s.sources {
		if src.ScopeID == scopeID {
			return s.run(ctx, src)
		}
	}
	return ingestion.Result{}, fmt.Errorf("%w: %s", ErrUnknownScope, scopeID)
}

func (s *Scheduler) run(ctx context.Context, src types.SourceDescriptor) (ingestion.Result, error) {
	if !s.tracker.TryStart(src.ScopeID) {
		return ingestion.Result{}, ErrBusy
	}
	res, err := s.runner.RunScope(ctx, src)
	s.tracker.Finish(src.ScopeID, res, err)
	if err != nil {
		return res, fmt.Errorf("scope %s: %w", src.ScopeID, err)
	}
	return res, nil
}
