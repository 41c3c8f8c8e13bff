// Package tagsync mirrors items found by a third-party tag search into the
// content store. Every write is an upsert so the job can be retried freely.
package tagsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pcaview/deduplication"
	"pcaview/store"
	"pcaview/types"

	"go.uber.org/zap"
)

// DefaultScope is the scope used when a sync request names none.
func DefaultScope(tag string) string { return "tag:" + tag }

// Report summarises one sync.
type Report struct {
	ScopeID  string
	Items    int
	Created  int
	Updated  int
	Comments int
	Failed   int
}

type Job struct {
	store    store.Store
	searcher Searcher
	log      *zap.Logger
	now      func() time.Time
}

func NewJob(st store.Store, s Searcher, log *zap.Logger) *Job {
	if log == nil {
		log = zap.NewNop()
	}
	return &Job{store: st, searcher: s, log: log.With(zap.String("component", "tagsync")), now: time.Now}
}

// Handle is the events.Handler for TagSyncRequested.
func (j *Job) Handle(ctx context.Context, ev types.Event) error {
	_, err := j.Sync(ctx, ev.Tag, ev.ScopeID)
	return err
}

// Sync fetches items for tag and upserts them into scopeID (or the tag's
// default scope). Each item commits with its comments in one transaction;
// failed items are reported together in the returned error.
func (j *Job) Sync(ctx context.Context, tag, scopeID string) (Report, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Report{}, &types.ValidationError{Field: "tag", Message: "required"}
	}
	if scopeID == "" {
		scopeID = DefaultScope(tag)
	}
	scope, err := j.store.EnsureScope(ctx, scopeID)
	if err != nil {
		return Report{}, fmt.Errorf("resolve scope %s: %w", scopeID, err)
	}
	rep := Report{ScopeID: scope.ID}
	log := j.log.With(zap.String("tag", tag), zap.String("scope", scope.ID))

	items, err := j.searcher.Search(ctx, tag)
	if err != nil {
		return rep, fmt.Errorf("tag search %q: %w", tag, err)
	}
	rep.Items = len(items)

	var errs []error
	for i := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		created, comments, err := j.syncItem(ctx, scope.ID, &items[i])
		if err != nil {
			rep.Failed++
			log.Warn("item sync failed", zap.String("link", items[i].Link), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if created {
			rep.Created++
		} else {
			rep.Updated++
		}
		rep.Comments += comments
	}

	log.Info("tag sync finished",
		zap.Int("items", rep.Items),
		zap.Int("created", rep.Created),
		zap.Int("updated", rep.Updated),
		zap.Int("comments", rep.Comments),
		zap.Int("failed", rep.Failed))
	return rep, errors.Join(errs...)
}

func (j *Job) syncItem(ctx context.Context, scopeID string, it *Item) (bool, int, error) {
	link := strings.TrimSpace(it.Link)
	if link == "" {
		return false, 0, &types.ParseError{Source: "tag-api", Item: it.Title, Err: errors.New("missing link")}
	}
	c := &types.Content{
		ScopeID:      scopeID,
		NaturalKey:   deduplication.NaturalKey(scopeID, link, ""),
		Title:        strings.TrimSpace(it.Title),
		Body:         it.Body,
		ThumbnailURL: it.Thumbnail,
		PublishedAt:  publishedAt(it.PublishedAt, j.now()),
		Type:         types.ContentArticle,
	}
	if c.Title == "" {
		c.Title = link
	}

	var created bool
	err := j.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		if created, err = tx.UpsertContent(ctx, c); err != nil {
			return fmt.Errorf("upsert content: %w", err)
		}
		for _, cm := range it.Comments {
			if cm.ID == "" {
				return &types.ValidationError{Field: "comment.id", Message: "required"}
			}
			pc := &types.PlatformComment{
				ExternalID: cm.ID,
				ContentID:  c.ID,
				Author:     cm.Author,
				Body:       cm.Body,
				Likes:      cm.Likes,
				Dislikes:   cm.Dislikes,
			}
			if _, err := tx.UpsertComment(ctx, pc); err != nil {
				return fmt.Errorf("upsert comment %s: %w", cm.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("item %s: %w", link, err)
	}
	return created, len(it.Comments), nil
}
