package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pcaview/deduplication"
	"pcaview/types"
)

// Key tables for JSON feeds. The first non-empty key wins.
var (
	jsonTitleKeys = []string{"title", "subject", "headline", "name"}
	jsonLinkKeys  = []string{"link", "url", "href", "permalink"}
	jsonIDKeys    = []string{"id", "uuid", "no", "idx", "seq"}
	jsonDateKeys  = []string{"published_at", "publishedAt", "created_at", "createdAt", "date", "regdate", "pubDate", "timestamp"}
	jsonBodyKeys  = []string{"body", "content", "contents", "html", "description", "summary", "text"}
	jsonMediaKeys = []string{"images", "media", "attachments", "photos", "files"}
	jsonThumbKeys = []string{"thumbnail", "thumbnail_url", "thumbnailUrl", "image", "image_url", "imageUrl"}
)

// JsonFeed reads JSON APIs that return items wrapped in an envelope or as a
// bare array.
type JsonFeed struct {
	fetcher *Fetcher
	loc     *time.Location
	now     func() time.Time
}

func NewJsonFeed(f *Fetcher, loc *time.Location, now func() time.Time) *JsonFeed {
	return &JsonFeed{fetcher: f, loc: loc, now: now}
}

func (a *JsonFeed) Strategy() types.Strategy { return types.JsonFeed }

func (a *JsonFeed) FetchListing(ctx context.Context, src types.SourceDescriptor) ([]types.CanonicalItem, error) {
	header := http.Header{"Accept": []string{"application/json"}}
	body, resp, err := a.fetcher.Do(ctx, http.MethodGet, src.URL, header)
	if err != nil {
		return nil, err
	}
	raw, err := unwrapItems(body)
	if err != nil {
		return nil, &types.ParseError{Source: src.URL, Err: err}
	}

	base := resp.Request.URL
	items := make([]types.CanonicalItem, 0, len(raw))
	for _, r := range raw {
		var obj map[string]any
		if err := json.Unmarshal(r, &obj); err != nil {
			continue
		}
		item, ok := a.toItem(src, base, obj)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return limitItems(items, src.MaxItems), nil
}

func (a *JsonFeed) toItem(src types.SourceDescriptor, base *url.URL, obj map[string]any) (types.CanonicalItem, bool) {
	item := types.CanonicalItem{
		SourceType: types.JsonFeed,
		Title:      collapseSpace(asString(firstKey(obj, jsonTitleKeys...))),
		BodyHTML:   strings.TrimSpace(asString(firstKey(obj, jsonBodyKeys...))),
		ExternalID: asString(firstKey(obj, jsonIDKeys...)),
	}
	if link := asString(firstKey(obj, jsonLinkKeys...)); link != "" {
		item.Link = resolve(base, link)
	}
	if item.Title == "" || (item.Link == "" && item.ExternalID == "") {
		return item, false
	}

	if t, ok := a.parseDate(firstKey(obj, jsonDateKeys...)); ok {
		item.PublishedAt = t
	}

	for _, m := range mediaList(firstKey(obj, jsonMediaKeys...)) {
		item.Images = append(item.Images, resolve(base, m))
	}
	if thumb := mediaURL(firstKey(obj, jsonThumbKeys...)); thumb != "" {
		item.ThumbnailURL = resolve(base, thumb)
	} else if len(item.Images) > 0 {
		item.ThumbnailURL = item.Images[0]
	}

	item.NaturalKey = deduplication.NaturalKey(src.ScopeID, item.Link, item.ExternalID)
	return item, true
}

func (a *JsonFeed) parseDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case string:
		return ParseDate(d, a.now(), a.loc)
	case float64:
		return epoch(int64(d)), d > 0
	case json.Number:
		n, err := d.Int64()
		return epoch(n), err == nil && n > 0
	}
	return time.Time{}, false
}

// epoch accepts seconds or milliseconds.
func epoch(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// unwrapItems finds the item array in a bare or wrapped payload.
func unwrapItems(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if body[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	for _, key := range []string{"data", "items", "result", "results", "list"} {
		raw, ok := env[key]
		if !ok {
			continue
		}
		if arr, err := unwrapItems(raw); err == nil {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("no item array in payload")
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

// mediaURL reads a media element that is either a string or an object with
// url/src.
func mediaURL(v any) string {
	switch m := v.(type) {
	case string:
		return strings.TrimSpace(m)
	case map[string]any:
		return asString(firstKey(m, "url", "src", "href"))
	}
	return ""
}

func mediaList(v any) []string {
	var out []string
	switch m := v.(type) {
	case []any:
		for _, e := range m {
			if u := mediaURL(e); u != "" {
				out = append(out, u)
			}
		}
	default:
		if u := mediaURL(m); u != "" {
			out = append(out, u)
		}
	}
	return out
}
