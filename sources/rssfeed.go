package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pcaview/deduplication"
	"pcaview/types"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// RssFeed parses trend feeds. Each item becomes a trend whose related news
// entries (ht:news_item) are kept as raw JSON payloads.
type RssFeed struct {
	fetcher *Fetcher
	now     func() time.Time
}

func NewRssFeed(f *Fetcher, now func() time.Time) *RssFeed {
	return &RssFeed{fetcher: f, now: now}
}

func (a *RssFeed) Strategy() types.Strategy { return types.RssFeed }

func (a *RssFeed) FetchListing(ctx context.Context, src types.SourceDescriptor) ([]types.CanonicalItem, error) {
	header := http.Header{"Accept": []string{"application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"}}
	body, resp, err := a.fetcher.Do(ctx, http.MethodGet, src.URL, header)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(DecodeToUTF8(body, resp.Header.Get("Content-Type")))
	if err != nil {
		return nil, &types.ParseError{Source: src.URL, Err: err}
	}

	items := make([]types.CanonicalItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		title := collapseSpace(it.Title)
		if title == "" {
			continue
		}

		// GUID when present, otherwise the title identifies the trend
		token := strings.TrimSpace(it.GUID)
		if token == "" {
			token = title
		}

		var publishedAt time.Time
		if it.PublishedParsed != nil {
			publishedAt = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			publishedAt = *it.UpdatedParsed
		} else {
			publishedAt = a.now()
		}

		summary := it.Description
		if summary == "" {
			summary = it.Content
		}

		item := types.CanonicalItem{
			NaturalKey:  deduplication.NaturalKey(src.ScopeID, "", token),
			Title:       title,
			BodyHTML:    summary,
			PublishedAt: publishedAt,
			Link:        it.Link,
			SourceType:  types.RssFeed,
			NewsItems:   newsItems(it.Extensions),
		}
		if it.Image != nil {
			item.ThumbnailURL = it.Image.URL
		} else if pic := extValue(it.Extensions, "ht", "picture"); pic != "" {
			item.ThumbnailURL = pic
		}
		items = append(items, item)
	}
	return limitItems(items, src.MaxItems), nil
}

// newsItems serializes every ht:news_item child set as a flat JSON object,
// e.g. {"title":"...","url":"...","source":"..."}.
func newsItems(e ext.Extensions) []json.RawMessage {
	var out []json.RawMessage
	for _, n := range e["ht"]["news_item"] {
		obj := make(map[string]string, len(n.Children))
		for name, children := range n.Children {
			if len(children) == 0 {
				continue
			}
			obj[strings.TrimPrefix(name, "news_item_")] = strings.TrimSpace(children[0].Value)
		}
		if len(obj) == 0 {
			continue
		}
		raw, err := json.Marshal(obj)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func extValue(e ext.Extensions, ns, name string) string {
	if vs := e[ns][name]; len(vs) > 0 {
		return strings.TrimSpace(vs[0].Value)
	}
	return ""
}
