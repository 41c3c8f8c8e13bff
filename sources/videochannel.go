package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"pcaview/deduplication"
	"pcaview/types"
)

const watchURL = "https://www.youtube.com/watch?v="

var initialDataRe = regexp.MustCompile(`(?s)(?:var\s+ytInitialData|window\["ytInitialData"\])\s*=\s*(\{.*?\});\s*</script>`)

// VideoSearcher lists a channel's latest uploads through an API instead of
// page scraping.
type VideoSearcher interface {
	LatestVideos(ctx context.Context, channelID string, max int) ([]types.CanonicalItem, error)
}

// VideoChannel reads a channel's videos tab. Items are keyed by video id.
type VideoChannel struct {
	fetcher  *Fetcher
	now      func() time.Time
	searcher VideoSearcher
}

// NewVideoChannel scrapes pages unless searcher is non-nil.
func NewVideoChannel(f *Fetcher, now func() time.Time, searcher VideoSearcher) *VideoChannel {
	return &VideoChannel{fetcher: f, now: now, searcher: searcher}
}

func (a *VideoChannel) Strategy() types.Strategy { return types.VideoChannel }

func (a *VideoChannel) FetchListing(ctx context.Context, src types.SourceDescriptor) ([]types.CanonicalItem, error) {
	if a.searcher != nil && src.ChannelID != "" {
		max := src.MaxItems
		if max <= 0 {
			max = 30
		}
		items, err := a.searcher.LatestVideos(ctx, src.ChannelID, max)
		if err != nil {
			return nil, err
		}
		for i := range items {
			items[i].NaturalKey = deduplication.NaturalKey(src.ScopeID, items[i].Link, items[i].ExternalID)
		}
		return items, nil
	}

	pageURL := src.URL
	if pageURL == "" {
		pageURL = "https://www.youtube.com/channel/" + src.ChannelID + "/videos"
	}
	page, err := a.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	m := initialDataRe.FindStringSubmatch(page.Body)
	if m == nil {
		return nil, &types.ParseError{Source: pageURL, Err: fmt.Errorf("ytInitialData not found")}
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
		return nil, &types.ParseError{Source: pageURL, Err: fmt.Errorf("decode ytInitialData: %w", err)}
	}

	now := a.now()
	var items []types.CanonicalItem
	for _, entry := range gridContents(data) {
		v := dig(entry, "richItemRenderer", "content", "videoRenderer")
		if v == nil {
			v = dig(entry, "gridVideoRenderer")
		}
		video, ok := v.(map[string]any)
		if !ok {
			continue
		}
		id := asString(video["videoId"])
		if id == "" {
			continue
		}
		item := types.CanonicalItem{
			ExternalID: id,
			Link:       watchURL + id,
			Title:      runsText(video["title"]),
			BodyHTML:   runsText(video["descriptionSnippet"]),
			SourceType: types.VideoChannel,
		}
		item.NaturalKey = deduplication.NaturalKey(src.ScopeID, item.Link, id)
		if thumbs, ok := dig(video, "thumbnail", "thumbnails").([]any); ok && len(thumbs) > 0 {
			item.ThumbnailURL = mediaURL(thumbs[len(thumbs)-1])
		}
		if t, ok := ParseRelative(runsText(video["publishedTimeText"]), now); ok {
			item.PublishedAt = t
		}
		items = append(items, item)
	}
	return limitItems(items, src.MaxItems), nil
}

// gridContents walks contents.twoColumnBrowseResultsRenderer.tabs[1] to the
// grid array, scanning the other tabs when the videos tab moved.
func gridContents(data map[string]any) []any {
	tabs, _ := dig(data, "contents", "twoColumnBrowseResultsRenderer", "tabs").([]any)
	if len(tabs) > 1 {
		if c := tabGrid(tabs[1]); c != nil {
			return c
		}
	}
	for _, tab := range tabs {
		if c := tabGrid(tab); c != nil {
			return c
		}
	}
	return nil
}

func tabGrid(tab any) []any {
	content := dig(tab, "tabRenderer", "content")
	if c, ok := dig(content, "richGridRenderer", "contents").([]any); ok {
		return c
	}
	sections, _ := dig(content, "sectionListRenderer", "contents").([]any)
	for _, s := range sections {
		inner, _ := dig(s, "itemSectionRenderer", "contents").([]any)
		for _, in := range inner {
			if c, ok := dig(in, "gridRenderer", "items").([]any); ok {
				return c
			}
		}
	}
	return nil
}

// dig follows object keys and returns nil on any miss.
func dig(v any, keys ...string) any {
	for _, k := range keys {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[k]
	}
	return v
}

// runsText reads {simpleText} or {runs:[{text}]}.
func runsText(v any) string {
	if s := asString(dig(v, "simpleText")); s != "" {
		return s
	}
	runs, _ := dig(v, "runs").([]any)
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(asString(dig(r, "text")))
	}
	return collapseSpace(b.String())
}
