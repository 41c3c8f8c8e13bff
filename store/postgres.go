package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pcaview/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var contentColumns = []string{
	"id", "scope_id", "natural_key", "title", "body", "file_url", "thumbnail_url",
	"published_at", "type", "is_ai_rewritten", "attachments", "created_at", "updated_at",
}

// Schema creates the tables used by Postgres. Unique constraints back the
// dedup invariants.
const Schema = `
CREATE TABLE IF NOT EXISTS scopes (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS contents (
	id              TEXT PRIMARY KEY,
	scope_id        TEXT NOT NULL,
	natural_key     TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	file_url        TEXT NOT NULL DEFAULT '',
	thumbnail_url   TEXT NOT NULL DEFAULT '',
	published_at    TIMESTAMPTZ,
	type            TEXT NOT NULL DEFAULT '',
	is_ai_rewritten BOOLEAN NOT NULL DEFAULT FALSE,
	attachments     JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (scope_id, natural_key)
);
CREATE TABLE IF NOT EXISTS trends (
	id          TEXT PRIMARY KEY,
	scope_id    TEXT NOT NULL,
	natural_key TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	news_items  JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (scope_id, natural_key)
);
CREATE TABLE IF NOT EXISTS platform_comments (
	external_id TEXT PRIMARY KEY,
	content_id  TEXT NOT NULL REFERENCES contents(id),
	author      TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	likes       INTEGER NOT NULL DEFAULT 0,
	dislikes    INTEGER NOT NULL DEFAULT 0,
	guest       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres persists the pipeline's records with pgx.
type Postgres struct {
	pool *pgxpool.Pool
	db   querier
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens a pool for dsn.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return &Postgres{pool: pool, db: pool}, nil
}

// EnsureSchema creates missing tables.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, Schema)
	return err
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanContent(row pgx.Row) (*types.Content, error) {
	var (
		c           types.Content
		publishedAt *time.Time
		attachments []byte
	)
	err := row.Scan(&c.ID, &c.ScopeID, &c.NaturalKey, &c.Title, &c.Body, &c.FileURL, &c.ThumbnailURL,
		&publishedAt, &c.Type, &c.IsAIRewritten, &attachments, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if publishedAt != nil {
		c.PublishedAt = *publishedAt
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &c.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return &c, nil
}

func marshalAttachments(a []string) string {
	if a == nil {
		a = []string{}
	}
	b, _ := json.Marshal(a)
	return string(b)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (p *Postgres) selectContent(ctx context.Context, where sq.Eq) (*types.Content, error) {
	query, args, err := psql.Select(contentColumns...).From("contents").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	return scanContent(p.db.QueryRow(ctx, query, args...))
}

func (p *Postgres) FindContent(ctx context.Context, scopeID, naturalKey string) (*types.Content, error) {
	return p.selectContent(ctx, sq.Eq{"scope_id": scopeID, "natural_key": naturalKey})
}

func (p *Postgres) GetContent(ctx context.Context, id string) (*types.Content, error) {
	return p.selectContent(ctx, sq.Eq{"id": id})
}

func (p *Postgres) CreateContent(ctx context.Context, c *types.Content) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query, args, err := psql.Insert("contents").
		Columns("id", "scope_id", "natural_key", "title", "body", "file_url", "thumbnail_url",
			"published_at", "type", "is_ai_rewritten", "attachments").
		Values(c.ID, c.ScopeID, c.NaturalKey, c.Title, c.Body, c.FileURL, c.ThumbnailURL,
			nullableTime(c.PublishedAt), c.Type, c.IsAIRewritten, sq.Expr("?::jsonb", marshalAttachments(c.Attachments))).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return err
	}
	if err := p.db.QueryRow(ctx, query, args...).Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertContent(ctx context.Context, c *types.Content) (bool, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query, args, err := psql.Insert("contents").
		Columns("id", "scope_id", "natural_key", "title", "body", "file_url", "thumbnail_url",
			"published_at", "type", "is_ai_rewritten", "attachments").
		Values(c.ID, c.ScopeID, c.NaturalKey, c.Title, c.Body, c.FileURL, c.ThumbnailURL,
			nullableTime(c.PublishedAt), c.Type, c.IsAIRewritten, sq.Expr("?::jsonb", marshalAttachments(c.Attachments))).
		Suffix(`ON CONFLICT (scope_id, natural_key) DO UPDATE SET
			title = EXCLUDED.title,
			file_url = EXCLUDED.file_url,
			thumbnail_url = EXCLUDED.thumbnail_url,
			published_at = EXCLUDED.published_at,
			type = EXCLUDED.type,
			attachments = EXCLUDED.attachments,
			body = CASE WHEN contents.is_ai_rewritten THEN contents.body ELSE EXCLUDED.body END,
			updated_at = NOW()
		RETURNING id, body, is_ai_rewritten, created_at, updated_at, (xmax = 0) AS inserted`).
		ToSql()
	if err != nil {
		return false, err
	}
	var inserted bool
	err = p.db.QueryRow(ctx, query, args...).
		Scan(&c.ID, &c.Body, &c.IsAIRewritten, &c.CreatedAt, &c.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert content: %w", err)
	}
	return inserted, nil
}

func (p *Postgres) updateContent(ctx context.Context, id string, set map[string]any) error {
	set["updated_at"] = sq.Expr("NOW()")
	query, args, err := psql.Update("contents").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateContentBody(ctx context.Context, id, body string, rewritten bool) error {
	return p.updateContent(ctx, id, map[string]any{"body": body, "is_ai_rewritten": rewritten})
}

func (p *Postgres) UpdateContentThumbnail(ctx context.Context, id, url string) error {
	return p.updateContent(ctx, id, map[string]any{"thumbnail_url": url})
}

func scanTrend(row pgx.Row) (*types.Trend, error) {
	var (
		t    types.Trend
		news []byte
	)
	if err := row.Scan(&t.ID, &t.ScopeID, &t.NaturalKey, &t.Title, &news, &t.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(news, &t.NewsItems); err != nil {
		return nil, fmt.Errorf("decode news_items: %w", err)
	}
	return &t, nil
}

func (p *Postgres) selectTrend(ctx context.Context, where sq.Eq) (*types.Trend, error) {
	query, args, err := psql.Select("id", "scope_id", "natural_key", "title", "news_items", "created_at").
		From("trends").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	return scanTrend(p.db.QueryRow(ctx, query, args...))
}

func (p *Postgres) FindTrend(ctx context.Context, scopeID, naturalKey string) (*types.Trend, error) {
	return p.selectTrend(ctx, sq.Eq{"scope_id": scopeID, "natural_key": naturalKey})
}

func (p *Postgres) GetTrend(ctx context.Context, id string) (*types.Trend, error) {
	return p.selectTrend(ctx, sq.Eq{"id": id})
}

func (p *Postgres) CreateTrend(ctx context.Context, t *types.Trend) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	news := t.NewsItems
	if news == nil {
		news = []json.RawMessage{}
	}
	b, err := json.Marshal(news)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("trends").
		Columns("id", "scope_id", "natural_key", "title", "news_items").
		Values(t.ID, t.ScopeID, t.NaturalKey, t.Title, sq.Expr("?::jsonb", string(b))).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return err
	}
	if err := p.db.QueryRow(ctx, query, args...).Scan(&t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert trend: %w", err)
	}
	return nil
}

// AppendTrendNews concatenates onto the jsonb array in place.
func (p *Postgres) AppendTrendNews(ctx context.Context, id string, items []json.RawMessage) error {
	if len(items) == 0 {
		return nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	query, args, err := psql.Update("trends").
		Set("news_items", sq.Expr("news_items || ?::jsonb", string(b))).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("append news_items: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertComment(ctx context.Context, c *types.PlatformComment) (bool, error) {
	query, args, err := psql.Insert("platform_comments").
		Columns("external_id", "content_id", "author", "body", "likes", "dislikes", "guest").
		Values(c.ExternalID, c.ContentID, c.Author, c.Body, c.Likes, c.Dislikes, c.Guest).
		Suffix(`ON CONFLICT (external_id) DO UPDATE SET
			content_id = EXCLUDED.content_id,
			author = EXCLUDED.author,
			body = EXCLUDED.body,
			likes = EXCLUDED.likes,
			dislikes = EXCLUDED.dislikes,
			guest = EXCLUDED.guest
		RETURNING created_at, (xmax = 0) AS inserted`).
		ToSql()
	if err != nil {
		return false, err
	}
	var inserted bool
	if err := p.db.QueryRow(ctx, query, args...).Scan(&c.CreatedAt, &inserted); err != nil {
		return false, fmt.Errorf("upsert comment: %w", err)
	}
	return inserted, nil
}

func (p *Postgres) ListComments(ctx context.Context, contentID string) ([]types.PlatformComment, error) {
	query, args, err := psql.Select("external_id", "content_id", "author", "body", "likes", "dislikes", "guest", "created_at").
		From("platform_comments").
		Where(sq.Eq{"content_id": contentID}).
		OrderBy("external_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.PlatformComment
	for rows.Next() {
		var c types.PlatformComment
		if err := rows.Scan(&c.ExternalID, &c.ContentID, &c.Author, &c.Body, &c.Likes, &c.Dislikes, &c.Guest, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) EnsureScope(ctx context.Context, name string) (types.Scope, error) {
	query, args, err := psql.Insert("scopes").
		Columns("id", "name").
		Values(name, name).
		Suffix("ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id, name").
		ToSql()
	if err != nil {
		return types.Scope{}, err
	}
	var s types.Scope
	if err := p.db.QueryRow(ctx, query, args...).Scan(&s.ID, &s.Name); err != nil {
		return types.Scope{}, fmt.Errorf("ensure scope: %w", err)
	}
	return s, nil
}

// WithTx runs fn in a transaction. Inside a transaction it runs fn directly.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if p.pool == nil {
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&Postgres{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
