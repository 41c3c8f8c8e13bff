package tagsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pcaview/config"
	"pcaview/ratelimit"
	"pcaview/sources"
	"pcaview/types"
)

// Item is one tag-search hit with its nested platform comments.
type Item struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Body        string    `json:"content"`
	Thumbnail   string    `json:"thumbnail"`
	PublishedAt string    `json:"published_at"`
	Comments    []Comment `json:"comments"`
}

// Comment is keyed by the id the third party assigns.
type Comment struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Body     string `json:"content"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
}

// Searcher looks up items by tag.
type Searcher interface {
	Search(ctx context.Context, tag string) ([]Item, error)
}

// Client calls the third-party tag search API.
// Request: GET {endpoint}?tag=...&limit=... with header X-API-Key
// Response: {"items": [Item, ...]}
type Client struct {
	fetcher  *sources.Fetcher
	endpoint string
	apiKey   string
	limit    int
	limiter  *ratelimit.Limiter
}

func NewClient(f *sources.Fetcher, endpoint, apiKey string, limiter *ratelimit.Limiter) *Client {
	if limiter == nil {
		limiter = ratelimit.New(config.ProviderTagAPI, ratelimit.Options{})
	}
	return &Client{fetcher: f, endpoint: endpoint, apiKey: apiKey, limit: 50, limiter: limiter}
}

func (c *Client) Search(ctx context.Context, tag string) ([]Item, error) {
	if c.endpoint == "" {
		return nil, &types.ValidationError{Field: "TAG_API_URL", Message: "required"}
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, &types.ValidationError{Field: "TAG_API_URL", Message: err.Error()}
	}
	q := u.Query()
	q.Set("tag", tag)
	q.Set("limit", strconv.Itoa(c.limit))
	u.RawQuery = q.Encode()

	header := http.Header{"Accept": {"application/json"}}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}

	var body []byte
	err = c.limiter.Do(ctx, func(ctx context.Context) error {
		var derr error
		body, _, derr = c.fetcher.Do(ctx, http.MethodGet, u.String(), header)
		var fe *types.FetchError
		if errors.As(derr, &fe) && sources.IsQuotaStatus(fe.StatusCode) {
			return &types.QuotaExceededError{Provider: config.ProviderTagAPI}
		}
		return derr
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &types.ParseError{Source: c.endpoint, Err: err}
	}
	return resp.Items, nil
}

// publishedAt parses an item date leniently, falling back to now.
func publishedAt(s string, now time.Time) time.Time {
	if s == "" {
		return now
	}
	if t, ok := sources.ParseDate(s, now, now.Location()); ok {
		return t
	}
	return now
}
