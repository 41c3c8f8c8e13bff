// Package ingestion turns source listings into canonical content and trend
// records, at most one per natural key per scope.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pcaview/deduplication"
	"pcaview/store"
	"pcaview/types"

	"go.uber.org/zap"
)

// Item outcomes.
const (
	StatusCreated   = "created"
	StatusUpdated   = "updated"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
)

// Lister fetches listings and, for adapters that need it, entry details.
type Lister interface {
	FetchListing(ctx context.Context, src types.SourceDescriptor) ([]types.CanonicalItem, error)
	FetchDetail(ctx context.Context, src types.SourceDescriptor, item *types.CanonicalItem) error
}

// Publisher hands events to the asynchronous listeners.
type Publisher interface {
	Publish(ctx context.Context, ev types.Event) error
}

// Options tunes a single-item ingest.
type Options struct {
	AllowImage  bool
	ContentType string
}

// ItemResult is the outcome of one item.
type ItemResult struct {
	NaturalKey string `json:"natural_key"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	ContentID  string `json:"content_id,omitempty"`
	TrendID    string `json:"trend_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result summarizes one scope run.
type Result struct {
	ScopeID string       `json:"scope_id"`
	Created int          `json:"created"`
	Updated int          `json:"updated"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Items   []ItemResult `json:"items"`
}

func (r *Result) add(ir ItemResult) {
	switch ir.Status {
	case StatusCreated:
		r.Created++
	case StatusUpdated:
		r.Updated++
	case StatusDuplicate:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
	r.Items = append(r.Items, ir)
}

// Orchestrator runs adapters and persists their items.
type Orchestrator struct {
	sources Lister
	store   store.Store
	guard   *deduplication.Guard
	events  Publisher
	log     *zap.Logger
	now     func() time.Time
}

// New creates an orchestrator. guard may be nil (no prefilter).
func New(sources Lister, st store.Store, guard *deduplication.Guard, events Publisher, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if guard == nil {
		guard = deduplication.NewGuard(nil, log)
	}
	return &Orchestrator{sources: sources, store: st, guard: guard, events: events, log: log, now: time.Now}
}

// RunScope fetches src's listing and ingests every item in document order.
// Only a listing failure aborts the run; item failures and duplicates are
// counted and the loop continues.
func (o *Orchestrator) RunScope(ctx context.Context, src types.SourceDescriptor) (Result, error) {
	res := Result{ScopeID: src.ScopeID}
	log := o.log.With(zap.String("scope", src.ScopeID), zap.String("strategy", string(src.Strategy)))

	if _, err := o.store.EnsureScope(ctx, src.ScopeID); err != nil {
		return res, fmt.Errorf("ensure scope %s: %w", src.ScopeID, err)
	}

	items, err := o.sources.FetchListing(ctx, src)
	if err != nil {
		log.Warn("listing failed", zap.Error(err))
		return res, fmt.Errorf("fetch listing for %s: %w", src.ScopeID, err)
	}
	log.Info("listing fetched", zap.Int("items", len(items)))

	opts := Options{ContentType: src.ContentType}
	for i := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ir := o.ingest(ctx, src.ScopeID, &src, &items[i], opts)
		if ir.Status == StatusFailed {
			log.Warn("item failed", zap.String("key", ir.NaturalKey), zap.String("error", ir.Error))
		}
		res.add(ir)
	}

	log.Info("scope run complete",
		zap.Int("total", len(items)),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

// Ingest persists a single item with create-or-skip semantics. It is used by
// listeners that discover content outside a scope listing.
func (o *Orchestrator) Ingest(ctx context.Context, scopeID string, item types.CanonicalItem, opts Options) (ItemResult, error) {
	ir := o.ingest(ctx, scopeID, nil, &item, opts)
	if ir.Status == StatusFailed {
		return ir, errors.New(ir.Error)
	}
	return ir, nil
}

func (o *Orchestrator) ingest(ctx context.Context, scopeID string, src *types.SourceDescriptor, item *types.CanonicalItem, opts Options) ItemResult {
	if item.NaturalKey == "" {
		item.NaturalKey = deduplication.NaturalKey(scopeID, item.Link, item.ExternalID)
	}
	ir := ItemResult{NaturalKey: item.NaturalKey, Title: item.Title}
	fail := func(err error) ItemResult {
		ir.Status = StatusFailed
		ir.Error = err.Error()
		return ir
	}

	switch item.SourceType {
	case types.RssFeed:
		return o.ingestTrend(ctx, scopeID, item, ir, fail)
	case types.VideoChannel:
		return o.upsertVideo(ctx, scopeID, item, opts, ir, fail)
	}

	seen, err := o.guard.Seen(ctx, scopeID, item.NaturalKey, func(ctx context.Context) (bool, error) {
		return exists(o.store.FindContent(ctx, scopeID, item.NaturalKey))
	})
	if err != nil {
		return fail(fmt.Errorf("dedup lookup: %w", err))
	}
	if seen {
		ir.Status = StatusDuplicate
		return ir
	}

	if src != nil {
		if err := o.sources.FetchDetail(ctx, *src, item); err != nil {
			return fail(fmt.Errorf("fetch detail %s: %w", item.Link, err))
		}
	}

	c := o.toContent(scopeID, item, opts)
	if err := o.store.CreateContent(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// lost a race with a concurrent run
			o.guard.Remember(ctx, scopeID, item.NaturalKey)
			ir.Status = StatusDuplicate
			return ir
		}
		return fail(fmt.Errorf("create content: %w", err))
	}
	o.guard.Remember(ctx, scopeID, item.NaturalKey)

	ir.Status = StatusCreated
	ir.ContentID = c.ID
	o.publish(ctx, types.Event{Kind: types.ContentIngested, ScopeID: scopeID, ContentID: c.ID, AllowImage: opts.AllowImage})
	return ir
}

func (o *Orchestrator) upsertVideo(ctx context.Context, scopeID string, item *types.CanonicalItem, opts Options, ir ItemResult, fail func(error) ItemResult) ItemResult {
	c := o.toContent(scopeID, item, opts)
	created, err := o.store.UpsertContent(ctx, c)
	if err != nil {
		return fail(fmt.Errorf("upsert video %s: %w", item.ExternalID, err))
	}
	o.guard.Remember(ctx, scopeID, item.NaturalKey)
	ir.ContentID = c.ID
	if !created {
		ir.Status = StatusUpdated
		return ir
	}
	ir.Status = StatusCreated
	o.publish(ctx, types.Event{Kind: types.ContentIngested, ScopeID: scopeID, ContentID: c.ID, AllowImage: opts.AllowImage})
	return ir
}

func (o *Orchestrator) ingestTrend(ctx context.Context, scopeID string, item *types.CanonicalItem, ir ItemResult, fail func(error) ItemResult) ItemResult {
	seen, err := o.guard.Seen(ctx, scopeID, item.NaturalKey, func(ctx context.Context) (bool, error) {
		return exists(o.store.FindTrend(ctx, scopeID, item.NaturalKey))
	})
	if err != nil {
		return fail(fmt.Errorf("dedup lookup: %w", err))
	}
	if seen {
		ir.Status = StatusDuplicate
		return ir
	}

	t := &types.Trend{
		ScopeID:    scopeID,
		NaturalKey: item.NaturalKey,
		Title:      item.Title,
		NewsItems:  item.NewsItems,
	}
	if err := o.store.CreateTrend(ctx, t); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			ir.Status = StatusDuplicate
			return ir
		}
		return fail(fmt.Errorf("create trend: %w", err))
	}
	o.guard.Remember(ctx, scopeID, item.NaturalKey)

	ir.Status = StatusCreated
	ir.TrendID = t.ID
	o.publish(ctx, types.Event{Kind: types.TrendFetched, ScopeID: scopeID, TrendID: t.ID})
	return ir
}

func (o *Orchestrator) toContent(scopeID string, item *types.CanonicalItem, opts Options) *types.Content {
	c := &types.Content{
		ScopeID:      scopeID,
		NaturalKey:   item.NaturalKey,
		Title:        item.Title,
		Body:         item.BodyHTML,
		ThumbnailURL: item.ThumbnailURL,
		PublishedAt:  item.PublishedAt,
		Type:         opts.ContentType,
		Attachments:  item.Images,
	}
	if c.PublishedAt.IsZero() {
		c.PublishedAt = o.now()
	}
	switch item.SourceType {
	case types.PdfListing:
		c.FileURL = item.Link
		if c.Type == "" {
			c.Type = types.ContentBulletin
		}
	case types.VideoChannel:
		if c.Type == "" {
			c.Type = types.ContentVideo
		}
	}
	if c.Type == "" {
		c.Type = types.ContentNews
	}
	return c
}

// publish logs failures; the item stays created.
func (o *Orchestrator) publish(ctx context.Context, ev types.Event) {
	if o.events == nil {
		return
	}
	ev.OccurredAt = o.now()
	if err := o.events.Publish(ctx, ev); err != nil {
		o.log.Error("publish event failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("content_id", ev.ContentID),
			zap.String("trend_id", ev.TrendID),
			zap.Error(err))
	}
}

func exists[T any](_ T, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
