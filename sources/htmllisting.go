package sources

import (
	"context"
	"strings"
	"time"

	"pcaview/deduplication"
	"pcaview/types"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// Default rule tables used when a descriptor leaves a field empty.
var (
	defaultListRule  = "ul li"
	defaultTitleRule = []string{".title", "a"}
	defaultLinkRule  = []string{"a@href"}
	defaultDateRule  = []string{"time@datetime", "time", ".date", ".time"}
	defaultBodyRule  = []string{"article@html", "#content@html", ".content@html", ".view_content@html"}
	defaultImageRule = []string{`meta[property="og:image"]@content`, "article img@src", "img@src"}
)

// HtmlListing scrapes a board-style listing page and, per new entry, its
// detail page.
type HtmlListing struct {
	fetcher *Fetcher
	loc     *time.Location
	now     func() time.Time
	log     *zap.Logger
}

func NewHtmlListing(f *Fetcher, loc *time.Location, now func() time.Time, log *zap.Logger) *HtmlListing {
	return &HtmlListing{fetcher: f, loc: loc, now: now, log: log}
}

func (a *HtmlListing) Strategy() types.Strategy { return types.HtmlListing }

func (a *HtmlListing) FetchListing(ctx context.Context, src types.SourceDescriptor) ([]types.CanonicalItem, error) {
	page, err := a.fetcher.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, &types.ParseError{Source: src.URL, Err: err}
	}

	list := src.Selectors.List
	if list == "" {
		list = defaultListRule
	}
	titles := NewRuleTable(src.Selectors.Title, defaultTitleRule...)
	links := NewRuleTable(src.Selectors.Link, defaultLinkRule...)
	dates := NewRuleTable(src.Selectors.Date, defaultDateRule...)
	now := a.now()

	var items []types.CanonicalItem
	seen := map[string]struct{}{}
	doc.Find(list).Each(func(_ int, s *goquery.Selection) {
		title := titles.First(s)
		href := links.First(s)
		if title == "" || href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		link := resolve(page.URL, href)
		key := deduplication.NaturalKey(src.ScopeID, link, "")
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		item := types.CanonicalItem{
			NaturalKey: key,
			Title:      title,
			Link:       link,
			SourceType: types.HtmlListing,
		}
		if t, ok := ParseDate(dates.First(s), now, a.loc); ok {
			item.PublishedAt = t
		}
		items = append(items, item)
	})
	return limitItems(items, src.MaxItems), nil
}

// FetchDetail loads the entry's detail page and fills body, images and,
// when the listing had none, the date.
func (a *HtmlListing) FetchDetail(ctx context.Context, src types.SourceDescriptor, item *types.CanonicalItem) error {
	page, err := a.fetcher.Get(ctx, item.Link)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return &types.ParseError{Source: src.URL, Item: item.Link, Err: err}
	}

	body := NewRuleTable(src.Selectors.Body, defaultBodyRule...).First(doc.Selection)
	if body == "" {
		article, rerr := readability.FromReader(strings.NewReader(page.Body), page.URL)
		if rerr != nil {
			a.log.Debug("readability fallback failed", zap.String("url", item.Link), zap.Error(rerr))
		} else {
			body = strings.TrimSpace(article.Content)
			if item.ThumbnailURL == "" && article.Image != "" {
				item.ThumbnailURL = resolve(page.URL, article.Image)
			}
		}
	}
	item.BodyHTML = body
	item.Images = bodyImages(body, page)

	if item.ThumbnailURL == "" {
		if img := NewRuleTable(src.Selectors.Image, defaultImageRule...).First(doc.Selection); img != "" {
			item.ThumbnailURL = resolve(page.URL, img)
		} else if len(item.Images) > 0 {
			item.ThumbnailURL = item.Images[0]
		}
	}
	if item.PublishedAt.IsZero() {
		dates := NewRuleTable(src.Selectors.Date, defaultDateRule...)
		if t, ok := ParseDate(dates.First(doc.Selection), a.now(), a.loc); ok {
			item.PublishedAt = t
		}
	}
	return nil
}

func bodyImages(body string, page *Page) []string {
	if body == "" {
		return nil
	}
	frag, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	frag.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, _ := s.Attr("src"); src != "" && !strings.HasPrefix(src, "data:") {
			out = append(out, resolve(page.URL, src))
		}
	})
	return out
}
