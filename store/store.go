package store

import (
	"context"
	"encoding/json"
	"errors"

	"pcaview/types"
)

var (
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("store: already exists")
	// ErrNotFound is returned when a lookup by id finds nothing.
	ErrNotFound = errors.New("store: not found")
)

// Store is the persistence collaborator for contents, trends, comments and
// scopes.
type Store interface {
	// FindContent returns the content of (scopeID, naturalKey) or ErrNotFound.
	FindContent(ctx context.Context, scopeID, naturalKey string) (*types.Content, error)
	GetContent(ctx context.Context, id string) (*types.Content, error)
	// CreateContent inserts c, assigning ID and timestamps. A unique violation
	// on (scope, natural key) yields ErrDuplicate.
	CreateContent(ctx context.Context, c *types.Content) error
	// UpsertContent creates or updates by (scope, natural key). The body and
	// rewrite flag of an existing row are kept once it has been rewritten.
	UpsertContent(ctx context.Context, c *types.Content) (created bool, err error)
	UpdateContentBody(ctx context.Context, id, body string, rewritten bool) error
	UpdateContentThumbnail(ctx context.Context, id, url string) error

	FindTrend(ctx context.Context, scopeID, naturalKey string) (*types.Trend, error)
	GetTrend(ctx context.Context, id string) (*types.Trend, error)
	CreateTrend(ctx context.Context, t *types.Trend) error
	// AppendTrendNews appends items to the trend's news_items, never replacing.
	AppendTrendNews(ctx context.Context, id string, items []json.RawMessage) error

	// UpsertComment creates or updates by external id.
	UpsertComment(ctx context.Context, c *types.PlatformComment) (created bool, err error)
	ListComments(ctx context.Context, contentID string) ([]types.PlatformComment, error)

	// EnsureScope returns the scope named name, creating it if missing.
	EnsureScope(ctx context.Context, name string) (types.Scope, error)

	// WithTx runs fn inside one transaction; fn's store commits or rolls back
	// as a unit.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
