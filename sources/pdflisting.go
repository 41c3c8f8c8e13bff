package sources

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"pcaview/deduplication"
	"pcaview/types"

	"github.com/PuerkitoBio/goquery"
)

// PdfListing scrapes an HTML index page for links to PDF files.
type PdfListing struct {
	fetcher *Fetcher
	loc     *time.Location
}

func NewPdfListing(f *Fetcher, loc *time.Location) *PdfListing {
	return &PdfListing{fetcher: f, loc: loc}
}

func (a *PdfListing) Strategy() types.Strategy { return types.PdfListing }

// FilenameToken is the date and issue number carried by a bulletin filename.
type FilenameToken struct {
	Date  time.Time
	Issue string
}

// Title renders the token as "2025.01.05 900호", omitting a missing issue.
func (t FilenameToken) Title() string {
	s := t.Date.Format("2006.01.02")
	if t.Issue != "" {
		s += " " + t.Issue + "호"
	}
	return s
}

// Key is the fallback natural-key token, e.g. "20250105-900".
func (t FilenameToken) Key() string {
	s := t.Date.Format("20060102")
	if t.Issue != "" {
		s += "-" + t.Issue
	}
	return s
}

// filenamePatterns are tried in order. Each captures year, month, day and an
// optional issue number.
var filenamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})[.\-_ ](\d{2})(\d{2})(?:[-_ ]?(\d+)\s*호)?`),
	regexp.MustCompile(`(\d{4})[.\-_ ](\d{1,2})[.\-_ ](\d{1,2})(?:[-_ ]?(\d+)\s*(?:호)?)?`),
	regexp.MustCompile(`(?:^|\D)(\d{4})(\d{2})(\d{2})(?:[-_ ]?(\d+)\s*호)?`),
}

// ParseFilename extracts the date token from a PDF filename.
func ParseFilename(name string, loc *time.Location) (FilenameToken, bool) {
	if loc == nil {
		loc = time.UTC
	}
	if un, err := url.PathUnescape(name); err == nil {
		name = un
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	for _, re := range filenamePatterns {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		d, ok := civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), 0, 0, loc)
		if !ok {
			continue
		}
		return FilenameToken{Date: d, Issue: m[4]}, true
	}
	return FilenameToken{}, false
}

func (a *PdfListing) FetchListing(ctx context.Context, src types.SourceDescriptor) ([]types.CanonicalItem, error) {
	page, err := a.fetcher.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, &types.ParseError{Source: src.URL, Err: err}
	}

	var items []types.CanonicalItem
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolve(page.URL, strings.TrimSpace(href))
		if !isPDF(abs) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		item := types.CanonicalItem{
			Link:       abs,
			SourceType: types.PdfListing,
			Title:      collapseSpace(s.Text()),
		}
		file := path.Base(pathOf(abs))
		token, ok := ParseFilename(file, a.loc)
		if ok {
			item.Title = token.Title()
			item.PublishedAt = token.Date
			item.NaturalKey = deduplication.NaturalKey(src.ScopeID, abs, token.Key())
		} else {
			if item.Title == "" {
				if un, err := url.PathUnescape(file); err == nil {
					file = un
				}
				item.Title = strings.TrimSuffix(file, path.Ext(file))
			}
			item.NaturalKey = deduplication.NaturalKey(src.ScopeID, abs, "")
		}
		items = append(items, item)
	})
	return limitItems(items, src.MaxItems), nil
}

func isPDF(raw string) bool {
	return strings.HasSuffix(strings.ToLower(pathOf(raw)), ".pdf")
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.EscapedPath()
}
