// Package events fans ingestion events out to listeners as durable jobs and
// runs those jobs with a timeout and bounded retry.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pcaview/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler processes one event for one listener.
type Handler func(ctx context.Context, ev types.Event) error

type subscription struct {
	name    string
	handler Handler
}

// Dispatcher maps event kinds to named listeners and enqueues one job per
// listener when an event is published.
type Dispatcher struct {
	mu    sync.RWMutex
	subs  map[types.EventKind][]subscription
	byKey map[string]Handler
	queue Queue
	log   *zap.Logger
	now   func() time.Time
}

func NewDispatcher(queue Queue, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		subs:  make(map[types.EventKind][]subscription),
		byKey: make(map[string]Handler),
		queue: queue,
		log:   log,
		now:   time.Now,
	}
}

// Subscribe registers handler under a listener name. Names must be unique;
// jobs refer to listeners by name so they survive a restart.
func (d *Dispatcher) Subscribe(kind types.EventKind, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.byKey[name]; dup {
		panic(fmt.Sprintf("events: listener %q registered twice", name))
	}
	d.subs[kind] = append(d.subs[kind], subscription{name: name, handler: handler})
	d.byKey[name] = handler
}

// Publish enqueues one job per listener subscribed to ev.Kind.
func (d *Dispatcher) Publish(ctx context.Context, ev types.Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.now()
	}
	d.mu.RLock()
	subs := append([]subscription(nil), d.subs[ev.Kind]...)
	d.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		job := types.Job{
			ID:         uuid.NewString(),
			Listener:   s.name,
			Event:      ev,
			EnqueuedAt: d.now(),
		}
		if err := d.queue.Enqueue(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s for %s: %w", ev.Kind, s.name, err))
			continue
		}
		d.log.Debug("job enqueued", zap.String("job", job.ID), zap.String("listener", s.name), zap.String("kind", string(ev.Kind)))
	}
	return errors.Join(errs...)
}

// Listener returns the handler registered under name.
func (d *Dispatcher) Listener(name string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.byKey[name]
	return h, ok
}
