package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"pcaview/shared/kafka"
	"pcaview/types"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("events: queue full")
	ErrQueueClosed = errors.New("events: queue closed")
)

// Queue accepts jobs for asynchronous execution.
type Queue interface {
	Enqueue(ctx context.Context, job types.Job) error
}

// KafkaQueue sends jobs to a Kafka topic keyed by job id.
type KafkaQueue struct {
	producer *kafka.Producer
}

func NewKafkaQueue(p *kafka.Producer) *KafkaQueue {
	return &KafkaQueue{producer: p}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, job types.Job) error {
	return q.producer.Send(ctx, job.ID, job)
}

// JobHandler adapts a runner to the Kafka consumer. Messages are marked once
// the runner has handled or re-enqueued them.
func JobHandler(r *Runner, log *zap.Logger) kafka.MessageHandler {
	return &kafka.TypedMessageHandler[types.Job]{
		Validate: func(job *types.Job) bool { return job.ID != "" && job.Listener != "" },
		Process: func(ctx context.Context, job *types.Job) error {
			return r.Handle(ctx, *job)
		},
		AlwaysMark: true,
		Logger:     log,
	}
}

// MemoryQueue is an in-process queue: a bounded channel drained by a fixed
// worker pool. Enqueue never blocks; a full queue rejects the job. A job with
// a future NotBefore is held by a timer goroutine so no worker sits idle on it.
type MemoryQueue struct {
	jobs    chan types.Job
	workers int
	log     *zap.Logger

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	done     sync.WaitGroup
}

func NewMemoryQueue(size, workers int, log *zap.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryQueue{jobs: make(chan types.Job, size), workers: workers, log: log}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job types.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.inflight.Add(1)
	if wait := time.Until(job.NotBefore); wait > 0 {
		go q.deliverLater(job, wait)
		return nil
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		q.inflight.Done()
		return ErrQueueFull
	}
}

// deliverLater pushes a delayed job once its wait is over. Close drains
// in-flight jobs before closing the channel, so the send cannot race it.
func (q *MemoryQueue) deliverLater(job types.Job, wait time.Duration) {
	time.Sleep(wait)
	q.mu.RLock()
	defer q.mu.RUnlock()
	q.jobs <- job
}

// Start launches the workers. Each job is handled with ctx.
func (q *MemoryQueue) Start(ctx context.Context, handle func(context.Context, types.Job) error) {
	for i := 0; i < q.workers; i++ {
		q.done.Add(1)
		go func(worker int) {
			defer q.done.Done()
			for job := range q.jobs {
				if err := handle(ctx, job); err != nil {
					q.log.Warn("job handler error", zap.Int("worker", worker), zap.String("job", job.ID), zap.Error(err))
				}
				q.inflight.Done()
			}
		}(i)
	}
}

// Drain waits until every enqueued job, including retries, has been handled.
func (q *MemoryQueue) Drain() {
	q.inflight.Wait()
}

// Close stops accepting jobs, drains the queue and stops the workers.
func (q *MemoryQueue) Close() {
	q.Drain()
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.done.Wait()
}

// Len returns the number of queued jobs.
func (q *MemoryQueue) Len() int { return len(q.jobs) }
