// Package search enriches a fetched trend with related news discovered
// through two independent providers.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pcaview/deduplication"
	"pcaview/ingestion"
	"pcaview/ratelimit"
	"pcaview/store"
	"pcaview/types"

	"go.uber.org/zap"
)

// Ingester persists a discovered item. *ingestion.Orchestrator implements it.
type Ingester interface {
	Ingest(ctx context.Context, scopeID string, item types.CanonicalItem, opts ingestion.Options) (ingestion.ItemResult, error)
}

// Source pairs a provider with the limiter guarding it.
type Source struct {
	Provider Provider
	Limiter  *ratelimit.Limiter
}

// Listener handles TrendFetched events.
type Listener struct {
	store    store.Store
	ingest   Ingester
	sources  []Source
	maxSeeds int
	log      *zap.Logger
}

func NewListener(st store.Store, ing Ingester, srcs []Source, maxSeeds int, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{store: st, ingest: ing, sources: srcs, maxSeeds: maxSeeds, log: log}
}

// Report summarizes one trend run.
type Report struct {
	Seeds    int
	Queried  int
	Created  int
	Appended int
}

// Handle is the events.Handler for TrendFetched.
func (l *Listener) Handle(ctx context.Context, ev types.Event) error {
	_, err := l.Run(ctx, ev.TrendID)
	return err
}

// Run searches every seed of the trend on every provider. A provider that
// hits its quota is skipped for the rest of the run; the quota error is
// returned after all discovered payloads have been appended.
func (l *Listener) Run(ctx context.Context, trendID string) (Report, error) {
	var rep Report
	trend, err := l.store.GetTrend(ctx, trendID)
	if err != nil {
		return rep, fmt.Errorf("load trend %s: %w", trendID, err)
	}
	log := l.log.With(zap.String("trend", trend.ID), zap.String("scope", trend.ScopeID))

	seeds := Seeds(trend, l.maxSeeds)
	rep.Seeds = len(seeds)

	known := make(map[string]struct{})
	for _, raw := range trend.NewsItems {
		if link := payloadLink(raw); link != "" {
			known[deduplication.NormalizeURL(link)] = struct{}{}
		}
	}

	var (
		payloads  []json.RawMessage
		quotaErr  error
		disabled  = make(map[string]bool)
		allowance = true
	)

	for _, seed := range seeds {
		if ctx.Err() != nil {
			break
		}
		for _, src := range l.sources {
			name := src.Provider.Name()
			if disabled[name] {
				continue
			}

			var results []Result
			err := src.Limiter.Do(ctx, func(ctx context.Context) error {
				var serr error
				results, serr = src.Provider.Search(ctx, seed)
				return serr
			})
			rep.Queried++
			if err != nil {
				if types.IsQuotaExceeded(err) {
					log.Warn("provider quota exceeded, skipping for this run", zap.String("provider", name))
					disabled[name] = true
					if quotaErr == nil {
						quotaErr = err
					}
					continue
				}
				log.Warn("search failed", zap.String("provider", name), zap.String("seed", seed), zap.Error(err))
				continue
			}

			for _, r := range results {
				key := deduplication.NormalizeURL(r.Link)
				if _, dup := known[key]; !dup && len(r.Raw) > 0 {
					known[key] = struct{}{}
					payloads = append(payloads, r.Raw)
				}

				ir, err := l.ingest.Ingest(ctx, trend.ScopeID, types.CanonicalItem{
					Title:       r.Title,
					Link:        r.Link,
					BodyHTML:    r.Description,
					PublishedAt: r.PublishedAt,
				}, ingestion.Options{AllowImage: allowance, ContentType: types.ContentNews})
				if err != nil {
					log.Warn("ingest search result failed", zap.String("link", r.Link), zap.Error(err))
					continue
				}
				if ir.Status == ingestion.StatusCreated {
					rep.Created++
					allowance = false
				}
			}
		}
	}

	if len(payloads) > 0 {
		if err := l.store.AppendTrendNews(ctx, trend.ID, payloads); err != nil {
			return rep, fmt.Errorf("append news items to trend %s: %w", trend.ID, err)
		}
		rep.Appended = len(payloads)
	}

	log.Info("trend search complete",
		zap.Int("seeds", rep.Seeds),
		zap.Int("queries", rep.Queried),
		zap.Int("created", rep.Created),
		zap.Int("appended", rep.Appended))

	if quotaErr != nil {
		return rep, quotaErr
	}
	return rep, ctx.Err()
}

// Seeds returns up to max distinct titles from the trend's news items,
// falling back to the trend title.
func Seeds(t *types.Trend, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" || (max > 0 && len(out) >= max) {
			return
		}
		k := deduplication.NormalizeTitle(s)
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	for _, raw := range t.NewsItems {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		for _, key := range []string{"title", "news_item_title"} {
			if s, ok := obj[key].(string); ok && s != "" {
				add(stripTags(s))
				break
			}
		}
	}
	if len(out) == 0 {
		add(t.Title)
	}
	return out
}

func payloadLink(raw json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"link", "url", "originallink"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
