package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"pcaview/types"

	"github.com/google/uuid"
)

// Memory is an in-process Store used for development and tests.
type Memory struct {
	mu       sync.Mutex
	contents map[string]*types.Content // id -> content
	byKey    map[string]string         // scope|key -> id
	trends   map[string]*types.Trend
	trendKey map[string]string
	comments map[string]*types.PlatformComment
	scopes   map[string]types.Scope
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		contents: make(map[string]*types.Content),
		byKey:    make(map[string]string),
		trends:   make(map[string]*types.Trend),
		trendKey: make(map[string]string),
		comments: make(map[string]*types.PlatformComment),
		scopes:   make(map[string]types.Scope),
		now:      time.Now,
	}
}

func scopedKey(scopeID, key string) string { return scopeID + "|" + key }

func cloneContent(c *types.Content) *types.Content {
	cp := *c
	cp.Attachments = append([]string(nil), c.Attachments...)
	return &cp
}

func cloneTrend(t *types.Trend) *types.Trend {
	cp := *t
	cp.NewsItems = append([]json.RawMessage(nil), t.NewsItems...)
	return &cp
}

func (m *Memory) FindContent(ctx context.Context, scopeID, naturalKey string) (*types.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.FindContent(ctx, scopeID, naturalKey)
}

func (m *Memory) GetContent(ctx context.Context, id string) (*types.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.GetContent(ctx, id)
}

func (m *Memory) CreateContent(ctx context.Context, c *types.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.CreateContent(ctx, c)
}

func (m *Memory) UpsertContent(ctx context.Context, c *types.Content) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.UpsertContent(ctx, c)
}

func (m *Memory) UpdateContentBody(ctx context.Context, id, body string, rewritten bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.UpdateContentBody(ctx, id, body, rewritten)
}

func (m *Memory) UpdateContentThumbnail(ctx context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.UpdateContentThumbnail(ctx, id, url)
}

func (m *Memory) FindTrend(ctx context.Context, scopeID, naturalKey string) (*types.Trend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.FindTrend(ctx, scopeID, naturalKey)
}

func (m *Memory) GetTrend(ctx context.Context, id string) (*types.Trend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.GetTrend(ctx, id)
}

func (m *Memory) CreateTrend(ctx context.Context, t *types.Trend) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.CreateTrend(ctx, t)
}

func (m *Memory) AppendTrendNews(ctx context.Context, id string, items []json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.AppendTrendNews(ctx, id, items)
}

func (m *Memory) UpsertComment(ctx context.Context, c *types.PlatformComment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.UpsertComment(ctx, c)
}

func (m *Memory) ListComments(ctx context.Context, contentID string) ([]types.PlatformComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.ListComments(ctx, contentID)
}

func (m *Memory) EnsureScope(ctx context.Context, name string) (types.Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memoryView{m}.EnsureScope(ctx, name)
}

// WithTx holds the store lock for the whole of fn and restores the
// pre-transaction state when fn fails. fn must use tx, not m.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshotLocked()
	if err := fn(memoryView{m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

// ContentCount returns the number of stored contents.
func (m *Memory) ContentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contents)
}

// Contents returns every stored content ordered by creation.
func (m *Memory) Contents() []types.Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Content, 0, len(m.contents))
	for _, c := range m.contents {
		out = append(out, *cloneContent(c))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memorySnapshot struct {
	contents map[string]*types.Content
	byKey    map[string]string
	trends   map[string]*types.Trend
	trendKey map[string]string
	comments map[string]*types.PlatformComment
	scopes   map[string]types.Scope
}

func (m *Memory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		contents: make(map[string]*types.Content, len(m.contents)),
		byKey:    make(map[string]string, len(m.byKey)),
		trends:   make(map[string]*types.Trend, len(m.trends)),
		trendKey: make(map[string]string, len(m.trendKey)),
		comments: make(map[string]*types.PlatformComment, len(m.comments)),
		scopes:   make(map[string]types.Scope, len(m.scopes)),
	}
	for k, v := range m.contents {
		s.contents[k] = cloneContent(v)
	}
	for k, v := range m.byKey {
		s.byKey[k] = v
	}
	for k, v := range m.trends {
		s.trends[k] = cloneTrend(v)
	}
	for k, v := range m.trendKey {
		s.trendKey[k] = v
	}
	for k, v := range m.comments {
		cp := *v
		s.comments[k] = &cp
	}
	for k, v := range m.scopes {
		s.scopes[k] = v
	}
	return s
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.contents, m.byKey = s.contents, s.byKey
	m.trends, m.trendKey = s.trends, s.trendKey
	m.comments, m.scopes = s.comments, s.scopes
}

// memoryView operates on m without locking. Callers hold m.mu.
type memoryView struct {
	m *Memory
}

var _ Store = memoryView{}

func (v memoryView) FindContent(_ context.Context, scopeID, naturalKey string) (*types.Content, error) {
	id, ok := v.m.byKey[scopedKey(scopeID, naturalKey)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneContent(v.m.contents[id]), nil
}

func (v memoryView) GetContent(_ context.Context, id string) (*types.Content, error) {
	c, ok := v.m.contents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneContent(c), nil
}

func (v memoryView) CreateContent(_ context.Context, c *types.Content) error {
	return v.insertContent(c)
}

func (v memoryView) insertContent(c *types.Content) error {
	k := scopedKey(c.ScopeID, c.NaturalKey)
	if _, exists := v.m.byKey[k]; exists {
		return ErrDuplicate
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := v.m.now()
	c.CreatedAt, c.UpdatedAt = now, now
	v.m.contents[c.ID] = cloneContent(c)
	v.m.byKey[k] = c.ID
	return nil
}

func (v memoryView) UpsertContent(_ context.Context, c *types.Content) (bool, error) {
	id, ok := v.m.byKey[scopedKey(c.ScopeID, c.NaturalKey)]
	if !ok {
		return true, v.insertContent(c)
	}
	cur := v.m.contents[id]
	cur.Title = c.Title
	cur.ThumbnailURL = c.ThumbnailURL
	cur.FileURL = c.FileURL
	cur.PublishedAt = c.PublishedAt
	cur.Type = c.Type
	cur.Attachments = append([]string(nil), c.Attachments...)
	if !cur.IsAIRewritten {
		cur.Body = c.Body
	}
	cur.UpdatedAt = v.m.now()
	*c = *cloneContent(cur)
	return false, nil
}

func (v memoryView) UpdateContentBody(_ context.Context, id, body string, rewritten bool) error {
	c, ok := v.m.contents[id]
	if !ok {
		return ErrNotFound
	}
	c.Body = body
	c.IsAIRewritten = rewritten
	c.UpdatedAt = v.m.now()
	return nil
}

func (v memoryView) UpdateContentThumbnail(_ context.Context, id, url string) error {
	c, ok := v.m.contents[id]
	if !ok {
		return ErrNotFound
	}
	c.ThumbnailURL = url
	c.UpdatedAt = v.m.now()
	return nil
}

func (v memoryView) FindTrend(_ context.Context, scopeID, naturalKey string) (*types.Trend, error) {
	id, ok := v.m.trendKey[scopedKey(scopeID, naturalKey)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTrend(v.m.trends[id]), nil
}

func (v memoryView) GetTrend(_ context.Context, id string) (*types.Trend, error) {
	t, ok := v.m.trends[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTrend(t), nil
}

func (v memoryView) CreateTrend(_ context.Context, t *types.Trend) error {
	k := scopedKey(t.ScopeID, t.NaturalKey)
	if _, exists := v.m.trendKey[k]; exists {
		return ErrDuplicate
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = v.m.now()
	v.m.trends[t.ID] = cloneTrend(t)
	v.m.trendKey[k] = t.ID
	return nil
}

func (v memoryView) AppendTrendNews(_ context.Context, id string, items []json.RawMessage) error {
	t, ok := v.m.trends[id]
	if !ok {
		return ErrNotFound
	}
	t.NewsItems = append(t.NewsItems, items...)
	return nil
}

func (v memoryView) UpsertComment(_ context.Context, c *types.PlatformComment) (bool, error) {
	if cur, ok := v.m.comments[c.ExternalID]; ok {
		cur.ContentID = c.ContentID
		cur.Author = c.Author
		cur.Body = c.Body
		cur.Likes = c.Likes
		cur.Dislikes = c.Dislikes
		cur.Guest = c.Guest
		return false, nil
	}
	cp := *c
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = v.m.now()
	}
	v.m.comments[c.ExternalID] = &cp
	return true, nil
}

func (v memoryView) ListComments(_ context.Context, contentID string) ([]types.PlatformComment, error) {
	var out []types.PlatformComment
	for _, c := range v.m.comments {
		if c.ContentID == contentID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (v memoryView) EnsureScope(_ context.Context, name string) (types.Scope, error) {
	if s, ok := v.m.scopes[name]; ok {
		return s, nil
	}
	s := types.Scope{ID: name, Name: name}
	v.m.scopes[name] = s
	return s, nil
}

// WithTx runs fn in the enclosing transaction.
func (v memoryView) WithTx(_ context.Context, fn func(tx Store) error) error {
	return fn(v)
}
