package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pcaview/types"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "pcaview-ingest/1.0 (+https://pcaview.com/bot)"
	maxBodyBytes     = 10 << 20
)

// Page is a fetched document decoded to UTF-8.
type Page struct {
	URL         *url.URL
	Body        string
	ContentType string
}

// Fetcher performs plain HTTPS GETs with a fixed timeout and a descriptive
// User-Agent.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher wraps client; nil uses a client with the default timeout.
func NewFetcher(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// Get fetches rawURL and decodes it to UTF-8.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Page, error) {
	body, resp, err := f.Do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	ct := resp.Header.Get("Content-Type")
	return &Page{
		URL:         resp.Request.URL,
		Body:        DecodeToUTF8(body, ct),
		ContentType: ct,
	}, nil
}

// Do sends a request and returns the raw body. Non-2xx responses and
// transport failures are *types.FetchError.
func (f *Fetcher) Do(ctx context.Context, method, rawURL string, header http.Header) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, nil, &types.FetchError{URL: rawURL, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, &types.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp, &types.FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, resp, nil
}

// IsQuotaStatus reports whether an HTTP status signals quota or rate rejection.
func IsQuotaStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusForbidden
}

// resolve makes href absolute against base.
func resolve(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
