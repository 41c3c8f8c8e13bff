package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pcaview/sources"
	"pcaview/types"

	"github.com/PuerkitoBio/goquery"
)

// Result is one news search hit. Raw is the payload appended to the trend.
type Result struct {
	Title       string
	Link        string
	Description string
	Source      string
	PublishedAt time.Time
	Raw         json.RawMessage
}

// Provider searches one news backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// ScrapeProvider reads the first page of a news search result page and keeps
// only its first results.
type ScrapeProvider struct {
	name    string
	fetcher *sources.Fetcher
	baseURL string
	limit   int
}

func NewScrapeProvider(name string, f *sources.Fetcher, baseURL string, limit int) *ScrapeProvider {
	return &ScrapeProvider{name: name, fetcher: f, baseURL: baseURL, limit: limit}
}

func (p *ScrapeProvider) Name() string { return p.name }

var (
	scrapeItems = "ul.list_news > li, div.news_area"
	scrapeTitle = sources.NewRuleTable([]string{"a.news_tit@title", "a.news_tit"})
	scrapeLink  = sources.NewRuleTable([]string{"a.news_tit@href"})
	scrapeDesc  = sources.NewRuleTable([]string{".news_dsc", ".dsc_txt_wrap"})
	scrapePress = sources.NewRuleTable([]string{"a.info.press", ".info_group .press"})
)

func (p *ScrapeProvider) Search(ctx context.Context, query string) ([]Result, error) {
	u, err := withQuery(p.baseURL, url.Values{"query": {query}})
	if err != nil {
		return nil, err
	}
	page, err := p.fetcher.Get(ctx, u)
	if err != nil {
		return nil, quotaOr(p.name, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, &types.ParseError{Source: u, Err: err}
	}

	var out []Result
	seen := make(map[string]struct{})
	doc.Find(scrapeItems).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := scrapeLink.First(s)
		title := scrapeTitle.First(s)
		if link == "" || title == "" {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		r := Result{
			Title:       title,
			Link:        link,
			Description: scrapeDesc.First(s),
			Source:      scrapePress.First(s),
		}
		r.Raw, _ = json.Marshal(map[string]string{
			"title":       r.Title,
			"link":        r.Link,
			"description": r.Description,
			"source":      r.Source,
			"provider":    p.name,
		})
		out = append(out, r)
		return len(out) < p.limit
	})
	return out, nil
}

// APIProvider calls an authenticated JSON search API and keeps only results
// hosted on the allow-listed host, rejecting syndicated mirrors.
type APIProvider struct {
	name         string
	fetcher      *sources.Fetcher
	endpoint     string
	clientID     string
	clientSecret string
	limit        int
	allow        *regexp.Regexp
}

func NewAPIProvider(name string, f *sources.Fetcher, endpoint, clientID, clientSecret string, limit int, allowPattern string) (*APIProvider, error) {
	allow, err := regexp.Compile(allowPattern)
	if err != nil {
		return nil, &types.ValidationError{Field: "NEWS_API_ALLOW_PATTERN", Message: err.Error()}
	}
	return &APIProvider{
		name:         name,
		fetcher:      f,
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		limit:        limit,
		allow:        allow,
	}, nil
}

func (p *APIProvider) Name() string { return p.name }

type apiResponse struct {
	Items []json.RawMessage `json:"items"`
}

type apiItem struct {
	Title        string `json:"title"`
	OriginalLink string `json:"originallink"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	PubDate      string `json:"pubDate"`
}

func (p *APIProvider) Search(ctx context.Context, query string) ([]Result, error) {
	u, err := withQuery(p.endpoint, url.Values{
		"query":   {query},
		"display": {strconv.Itoa(p.limit)},
		"sort":    {"sim"},
	})
	if err != nil {
		return nil, err
	}
	header := http.Header{
		"X-Naver-Client-Id":     {p.clientID},
		"X-Naver-Client-Secret": {p.clientSecret},
		"Accept":                {"application/json"},
	}
	body, _, err := p.fetcher.Do(ctx, http.MethodGet, u, header)
	if err != nil {
		return nil, quotaOr(p.name, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &types.ParseError{Source: p.endpoint, Err: err}
	}

	var out []Result
	for _, raw := range resp.Items {
		var it apiItem
		if err := json.Unmarshal(raw, &it); err != nil {
			continue
		}
		if !p.allowed(it.Link) {
			continue
		}
		r := Result{
			Title:       stripTags(it.Title),
			Link:        it.Link,
			Description: stripTags(it.Description),
			Raw:         raw,
		}
		if t, err := time.Parse(time.RFC1123Z, it.PubDate); err == nil {
			r.PublishedAt = t
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *APIProvider) allowed(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	return p.allow.MatchString(strings.ToLower(u.Hostname()))
}

// quotaOr converts 429/403 responses into a quota error.
func quotaOr(provider string, err error) error {
	var fe *types.FetchError
	if errors.As(err, &fe) && sources.IsQuotaStatus(fe.StatusCode) {
		return &types.QuotaExceededError{Provider: provider}
	}
	return err
}

func withQuery(base string, q url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String(), nil
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(s, "")))
}
