package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"pcaview/ingestion"
	"pcaview/ratelimit"
	"pcaview/sources"
	"pcaview/store"
	"pcaview/types"
)

func scrapePage(n int) string {
	html := `<ul class="list_news">`
	for i := 1; i <= n; i++ {
		html += fmt.Sprintf(`<li><div class="news_area"><a class="info press">언론%d</a>
			<a class="news_tit" href="https://press%d.example/news/%d" title="금값 상승 기사 %d">금값 상승 기사 %d</a>
			<div class="news_dsc">요약 %d</div></div></li>`, i, i, i, i, i, i)
	}
	return html + `</ul>`
}

const apiPayload = `{"items":[
 {"title":"<b>금값</b> 상승세","originallink":"https://mirror.example/a","link":"https://n.news.naver.com/article/001/1","description":"금값 &quot;최고&quot;","pubDate":"Sun, 05 Jan 2025 09:00:00 +0900"},
 {"title":"재송고","originallink":"https://mirror.example/b","link":"https://mirror.example/b","description":"","pubDate":""}
]}`

type fixture struct {
	srv        *httptest.Server
	scrapeHits atomic.Int32
	apiHits    atomic.Int32
	apiStatus  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{apiStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		f.scrapeHits.Add(1)
		if r.URL.Query().Get("query") == "" {
			http.Error(w, "missing query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, scrapePage(8))
	})
	mux.HandleFunc("/v1/search/news.json", func(w http.ResponseWriter, r *http.Request) {
		f.apiHits.Add(1)
		if r.Header.Get("X-Naver-Client-Id") != "id" || r.Header.Get("X-Naver-Client-Secret") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if f.apiStatus != http.StatusOK {
			w.WriteHeader(f.apiStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, apiPayload)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

type env struct {
	store    *store.Memory
	events   *eventLog
	listener *Listener
	api      *ratelimit.Limiter
}

type eventLog struct{ events []types.Event }

func (e *eventLog) Publish(_ context.Context, ev types.Event) error {
	e.events = append(e.events, ev)
	return nil
}

func newEnv(t *testing.T, f *fixture) *env {
	t.Helper()
	st := store.NewMemory()
	evs := &eventLog{}
	orch := ingestion.New(nil, st, nil, evs, nil)
	fetcher := sources.NewFetcher(f.srv.Client(), "")

	api, err := NewAPIProvider("news-api", fetcher, f.srv.URL+"/v1/search/news.json", "id", "secret", 10, `^n\.news\.naver\.com$`)
	if err != nil {
		t.Fatal(err)
	}
	apiLimiter := ratelimit.New("news-api", ratelimit.Options{})
	srcs := []Source{
		{Provider: NewScrapeProvider("news-scrape", fetcher, f.srv.URL+"/search?where=news", 5), Limiter: ratelimit.New("news-scrape", ratelimit.Options{})},
		{Provider: api, Limiter: apiLimiter},
	}
	return &env{store: st, events: evs, listener: NewListener(st, orch, srcs, 10, nil), api: apiLimiter}
}

func createTrend(t *testing.T, st store.Store, items ...string) *types.Trend {
	t.Helper()
	tr := &types.Trend{ScopeID: "trends-kr", NaturalKey: "trends-kr:금값", Title: "금값"}
	for _, it := range items {
		tr.NewsItems = append(tr.NewsItems, json.RawMessage(it))
	}
	if err := st.CreateTrend(context.Background(), tr); err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestTrendSearchQueriesBothProviders(t *testing.T) {
	f := newFixture(t)
	e := newEnv(t, f)
	tr := createTrend(t, e.store, `{"title":"금값 상승"}`)

	rep, err := e.listener.Run(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.scrapeHits.Load() != 1 || f.apiHits.Load() != 1 {
		t.Fatalf("hits scrape=%d api=%d, want 1 each", f.scrapeHits.Load(), f.apiHits.Load())
	}
	// 5 scraped results plus 1 allow-listed API result
	if rep.Created != 6 || e.store.ContentCount() != 6 {
		t.Fatalf("created = %d, stored = %d; want 6", rep.Created, e.store.ContentCount())
	}
	if _, err := e.store.FindContent(context.Background(), "trends-kr", "https://mirror.example/b"); err == nil {
		t.Fatal("mirror result must be filtered")
	}
	c, err := e.store.FindContent(context.Background(), "trends-kr", "https://n.news.naver.com/article/001/1")
	if err != nil {
		t.Fatalf("api result missing: %v", err)
	}
	if c.Title != "금값 상승세" || c.Type != types.ContentNews {
		t.Fatalf("content = %+v", c)
	}

	got, _ := e.store.GetTrend(context.Background(), tr.ID)
	if len(got.NewsItems) != 1+6 {
		t.Fatalf("news items = %d, want 7", len(got.NewsItems))
	}

	allowed := 0
	for _, ev := range e.events.events {
		if ev.AllowImage {
			allowed++
		}
	}
	if allowed != 1 || !e.events.events[0].AllowImage {
		t.Fatalf("image allowance granted %d times, want once on the first created content", allowed)
	}
}

func TestTrendSearchIsIdempotent(t *testing.T) {
	f := newFixture(t)
	e := newEnv(t, f)
	tr := createTrend(t, e.store, `{"title":"금값 상승"}`)

	if _, err := e.listener.Run(context.Background(), tr.ID); err != nil {
		t.Fatal(err)
	}
	rep, err := e.listener.Run(context.Background(), tr.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Created != 0 || rep.Appended != 0 {
		t.Fatalf("second run = %+v", rep)
	}
	if e.store.ContentCount() != 6 {
		t.Fatalf("stored = %d", e.store.ContentCount())
	}
}

func TestTrendSearchQuotaIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.apiStatus = http.StatusTooManyRequests
	e := newEnv(t, f)
	tr := createTrend(t, e.store, `{"title":"금값 상승"}`, `{"title":"금 시세"}`, `{"title":"금값 상승"}`)

	rep, err := e.listener.Run(context.Background(), tr.ID)
	if !types.IsQuotaExceeded(err) {
		t.Fatalf("want quota error, got %v", err)
	}
	if f.apiHits.Load() != 1 {
		t.Fatalf("api queried %d times after quota, want 1", f.apiHits.Load())
	}
	if f.scrapeHits.Load() != 2 {
		t.Fatalf("scrape hits = %d, want 2 (one per distinct seed)", f.scrapeHits.Load())
	}
	if rep.Appended == 0 {
		t.Fatal("payloads discovered before the quota error must still be appended")
	}
	if exceeded, _ := e.api.Exceeded(context.Background()); !exceeded {
		t.Fatal("quota flag not set for the api provider")
	}
}

func TestSeeds(t *testing.T) {
	tr := &types.Trend{Title: "환율"}
	if got := Seeds(tr, 10); len(got) != 1 || got[0] != "환율" {
		t.Fatalf("fallback seeds = %v", got)
	}

	for i := 0; i < 15; i++ {
		tr.NewsItems = append(tr.NewsItems, json.RawMessage(fmt.Sprintf(`{"title":"기사 %d"}`, i)))
	}
	tr.NewsItems = append(tr.NewsItems, json.RawMessage(`{"title":"기사 0"}`))
	if got := Seeds(tr, 10); len(got) != 10 || got[0] != "기사 0" {
		t.Fatalf("seeds = %v", got)
	}
}
