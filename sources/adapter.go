package sources

import (
	"context"
	"fmt"
	"time"

	"pcaview/types"

	"go.uber.org/zap"
)

// Adapter turns one source into canonical items, in document order.
type Adapter interface {
	Strategy() types.Strategy
	FetchListing(ctx context.Context, src types.SourceDescriptor) ([]types.CanonicalItem, error)
}

// Detailer is implemented by adapters whose listing entries need a second
// fetch. The orchestrator calls it only for items it is about to create.
type Detailer interface {
	FetchDetail(ctx context.Context, src types.SourceDescriptor, item *types.CanonicalItem) error
}

// Registry dispatches a descriptor to the adapter registered for its strategy.
type Registry struct {
	adapters map[types.Strategy]Adapter
}

// NewRegistry registers adapters by their strategy; later ones win.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[types.Strategy]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Strategy()] = a
	}
	return r
}

// Options configures the default adapter set.
type Options struct {
	Fetcher  *Fetcher
	Location *time.Location
	Now      func() time.Time
	Videos   VideoSearcher
	Logger   *zap.Logger
}

// NewDefaultRegistry builds one adapter per strategy sharing a fetcher.
func NewDefaultRegistry(opts Options) *Registry {
	if opts.Fetcher == nil {
		opts.Fetcher = NewFetcher(nil, "")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return NewRegistry(
		NewPdfListing(opts.Fetcher, opts.Location),
		NewJsonFeed(opts.Fetcher, opts.Location, opts.Now),
		NewHtmlListing(opts.Fetcher, opts.Location, opts.Now, opts.Logger),
		NewVideoChannel(opts.Fetcher, opts.Now, opts.Videos),
		NewRssFeed(opts.Fetcher, opts.Now),
	)
}

// Get returns the adapter for a strategy.
func (r *Registry) Get(s types.Strategy) (Adapter, error) {
	a, ok := r.adapters[s]
	if !ok {
		return nil, &types.ValidationError{Field: "strategy", Message: fmt.Sprintf("no adapter for %q", s)}
	}
	return a, nil
}

// FetchListing dispatches src to its adapter.
func (r *Registry) FetchListing(ctx context.Context, src types.SourceDescriptor) ([]types.CanonicalItem, error) {
	a, err := r.Get(src.Strategy)
	if err != nil {
		return nil, err
	}
	return a.FetchListing(ctx, src)
}

// FetchDetail runs the adapter's detail step when it has one.
func (r *Registry) FetchDetail(ctx context.Context, src types.SourceDescriptor, item *types.CanonicalItem) error {
	a, err := r.Get(src.Strategy)
	if err != nil {
		return err
	}
	if d, ok := a.(Detailer); ok {
		return d.FetchDetail(ctx, src, item)
	}
	return nil
}

// limitItems truncates items to max when max is positive.
func limitItems(items []types.CanonicalItem, max int) []types.CanonicalItem {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}
