package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"pcaview/config"
	"pcaview/types"

	"go.uber.org/zap"
)

// RunnerOptions configures job execution.
type RunnerOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	// Backoff is the delay before the first retry, doubled on each later one.
	Backoff time.Duration
	Now     func() time.Time
}

// Stats counts job outcomes since start.
type Stats struct {
	Succeeded int64 `json:"succeeded"`
	Retried   int64 `json:"retried"`
	Terminal  int64 `json:"terminal"`
	Failed    int64 `json:"failed"`
}

// Runner executes jobs. A quota failure is terminal; other failures are
// re-enqueued with exponential backoff until MaxAttempts runs have failed.
type Runner struct {
	dispatcher  *Dispatcher
	queue       Queue
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	log         *zap.Logger

	succeeded atomic.Int64
	retried   atomic.Int64
	terminal  atomic.Int64
	failed    atomic.Int64
}

func NewRunner(d *Dispatcher, q Queue, opts RunnerOptions, log *zap.Logger) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = config.JobTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = config.MaxJobAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = config.RetryBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		dispatcher:  d,
		queue:       q,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		now:         opts.Now,
		log:         log,
	}
}

// RetryDelay returns the wait before retry number attempt (1-based):
// backoff * 2^(attempt-1).
func (r *Runner) RetryDelay(attempt int) time.Duration {
	delay := r.backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// Handle waits for the job's NotBefore, then runs it under the per-job
// timeout. It returns an error only when a retry could not be enqueued or ctx
// ended while waiting, so the transport can leave the job unacked.
func (r *Runner) Handle(ctx context.Context, job types.Job) error {
	log := r.log.With(
		zap.String("job", job.ID),
		zap.String("listener", job.Listener),
		zap.String("kind", string(job.Event.Kind)),
		zap.Int("attempt", job.Attempts+1))

	handler, ok := r.dispatcher.Listener(job.Listener)
	if !ok {
		log.Error("no listener registered, dropping job")
		r.failed.Add(1)
		return nil
	}

	if wait := job.NotBefore.Sub(r.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	jctx, cancel := context.WithTimeout(ctx, r.timeout)
	err := handler(jctx, job.Event)
	cancel()

	switch {
	case err == nil:
		r.succeeded.Add(1)
		log.Debug("job done")
		return nil
	case types.IsQuotaExceeded(err):
		r.terminal.Add(1)
		log.Warn("job stopped on quota, not retrying", zap.Error(err))
		return nil
	case job.Attempts+1 >= r.maxAttempts:
		r.failed.Add(1)
		log.Error("job failed permanently", zap.Error(err))
		return nil
	}

	job.Attempts++
	delay := r.RetryDelay(job.Attempts)
	job.NotBefore = r.now().Add(delay)
	if qerr := r.queue.Enqueue(ctx, job); qerr != nil {
		log.Error("retry enqueue failed", zap.Error(qerr), zap.NamedError("cause", err))
		return fmt.Errorf("re-enqueue job %s: %w", job.ID, qerr)
	}
	r.retried.Add(1)
	log.Warn("job failed, retrying", zap.Duration("delay", delay), zap.Error(err))
	return nil
}

// Stats returns a snapshot of job outcome counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Succeeded: r.succeeded.Load(),
		Retried:   r.retried.Load(),
		Terminal:  r.terminal.Load(),
		Failed:    r.failed.Load(),
	}
}
