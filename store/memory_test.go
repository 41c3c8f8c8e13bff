package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"pcaview/types"
)

func TestCreateContentRejectsDuplicateWithinScope(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := &types.Content{ScopeID: "s1", NaturalKey: "https://a.test/1", Title: "one"}
	if err := m.CreateContent(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("ID not assigned")
	}

	dup := &types.Content{ScopeID: "s1", NaturalKey: "https://a.test/1", Title: "again"}
	if err := m.CreateContent(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate create = %v; want ErrDuplicate", err)
	}

	other := &types.Content{ScopeID: "s2", NaturalKey: "https://a.test/1", Title: "other scope"}
	if err := m.CreateContent(ctx, other); err != nil {
		t.Fatalf("same key in another scope: %v", err)
	}
	if m.ContentCount() != 2 {
		t.Fatalf("count = %d; want 2", m.ContentCount())
	}

	got, err := m.FindContent(ctx, "s1", "https://a.test/1")
	if err != nil || got.Title != "one" {
		t.Fatalf("FindContent = %+v, %v", got, err)
	}
	if _, err := m.FindContent(ctx, "s3", "https://a.test/1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindContent missing = %v; want ErrNotFound", err)
	}
}

func TestUpsertContentKeepsRewrittenBody(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	c := &types.Content{ScopeID: "v", NaturalKey: "yt:abc", Title: "t1", Body: "orig"}
	created, err := m.UpsertContent(ctx, c)
	if err != nil || !created {
		t.Fatalf("first upsert created=%v err=%v", created, err)
	}
	if err := m.UpdateContentBody(ctx, c.ID, "rewritten", true); err != nil {
		t.Fatalf("update body: %v", err)
	}

	again := &types.Content{ScopeID: "v", NaturalKey: "yt:abc", Title: "t2", Body: "fresh", ThumbnailURL: "https://img.test/2.jpg"}
	created, err = m.UpsertContent(ctx, again)
	if err != nil || created {
		t.Fatalf("second upsert created=%v err=%v", created, err)
	}
	got, _ := m.GetContent(ctx, c.ID)
	if got.Title != "t2" || got.ThumbnailURL != "https://img.test/2.jpg" {
		t.Fatalf("title/thumbnail not updated: %+v", got)
	}
	if got.Body != "rewritten" || !got.IsAIRewritten {
		t.Fatalf("rewritten body lost: %+v", got)
	}
	if m.ContentCount() != 1 {
		t.Fatalf("count = %d; want 1", m.ContentCount())
	}
}

func TestAppendTrendNewsIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	tr := &types.Trend{ScopeID: "trends", NaturalKey: "금값", Title: "금값", NewsItems: []json.RawMessage{json.RawMessage(`{"title":"금값 상승"}`)}}
	if err := m.CreateTrend(ctx, tr); err != nil {
		t.Fatalf("create trend: %v", err)
	}
	if err := m.CreateTrend(ctx, &types.Trend{ScopeID: "trends", NaturalKey: "금값"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate trend = %v", err)
	}
	if err := m.AppendTrendNews(ctx, tr.ID, []json.RawMessage{json.RawMessage(`{"a":1}`), json.RawMessage(`{"b":2}`)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ := m.GetTrend(ctx, tr.ID)
	if len(got.NewsItems) != 3 || string(got.NewsItems[0]) != `{"title":"금값 상승"}` {
		t.Fatalf("news_items = %s", got.NewsItems)
	}
}

func TestUpsertCommentByExternalID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := &types.PlatformComment{ExternalID: "ext-1", ContentID: "c1", Body: "hi", Likes: 1}
	if created, _ := m.UpsertComment(ctx, c); !created {
		t.Fatalf("first upsert not created")
	}
	c2 := &types.PlatformComment{ExternalID: "ext-1", ContentID: "c1", Body: "hi", Likes: 5}
	if created, _ := m.UpsertComment(ctx, c2); created {
		t.Fatalf("second upsert created a duplicate")
	}
	list, _ := m.ListComments(ctx, "c1")
	if len(list) != 1 || list[0].Likes != 5 {
		t.Fatalf("comments = %+v", list)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateContent(ctx, &types.Content{ScopeID: "s", NaturalKey: "k"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx = %v; want boom", err)
	}
	if m.ContentCount() != 0 {
		t.Fatalf("rollback left %d contents", m.ContentCount())
	}

	err = m.WithTx(ctx, func(tx Store) error {
		return tx.CreateContent(ctx, &types.Content{ScopeID: "s", NaturalKey: "k"})
	})
	if err != nil || m.ContentCount() != 1 {
		t.Fatalf("commit: err=%v count=%d", err, m.ContentCount())
	}
}

func TestWithTxRollbackKeepsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	if err := m.CreateContent(ctx, &types.Content{ScopeID: "s", NaturalKey: "before"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	started := make(chan struct{})
	done := make(chan error, 1)
	err := m.WithTx(ctx, func(tx Store) error {
		go func() {
			close(started)
			done <- m.CreateContent(ctx, &types.Content{ScopeID: "s", NaturalKey: "outside"})
		}()
		<-started
		if err := tx.CreateContent(ctx, &types.Content{ScopeID: "s", NaturalKey: "inside"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx = %v; want boom", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("outside create: %v", err)
	}

	for _, key := range []string{"before", "outside"} {
		if _, err := m.FindContent(ctx, "s", key); err != nil {
			t.Fatalf("content %q lost after rollback: %v", key, err)
		}
	}
	if _, err := m.FindContent(ctx, "s", "inside"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled back content still present: %v", err)
	}
	if m.ContentCount() != 2 {
		t.Fatalf("count = %d; want 2", m.ContentCount())
	}
}

func TestEnsureScopeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, _ := m.EnsureScope(ctx, "tag:golf")
	b, _ := m.EnsureScope(ctx, "tag:golf")
	if a != b {
		t.Fatalf("EnsureScope not idempotent: %+v vs %+v", a, b)
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	scope, _ := p.EnsureScope(ctx, "pgtest")
	key := "https://pg.test/" + types.GenerateID(t.Name())
	c := &types.Content{ScopeID: scope.ID, NaturalKey: key, Title: "t"}
	if err := p.CreateContent(ctx, c); err != nil && !errors.Is(err, ErrDuplicate) {
		t.Fatalf("create: %v", err)
	}
	if err := p.CreateContent(ctx, &types.Content{ScopeID: scope.ID, NaturalKey: key}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second create = %v; want ErrDuplicate", err)
	}
	if _, err := p.FindContent(ctx, scope.ID, key); err != nil {
		t.Fatalf("find: %v", err)
	}
}
