package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pcaview/types"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

func newBoardServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/board", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<table class="board">
			<tr class="row"><td class="subject"><a href="/board/1?utm_source=x">신년 예배 안내</a></td><td class="date">2025.01.05</td></tr>
			<tr class="row"><td class="subject"><a href="/board/2">봉사자 모집</a></td><td class="date">3일전</td></tr>
			<tr class="row"><td class="subject"><a href="javascript:void(0)">숨김</a></td></tr>
		</table>`)
	})
	mux.HandleFunc("/board/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:image" content="/og.png"></head>
			<body><div class="view_content"><p>본문입니다</p><img src="/img/1.jpg"></div></body></html>`)
	})
	mux.HandleFunc("/board/2", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

func TestHtmlListing(t *testing.T) {
	srv := newBoardServer(t)
	defer srv.Close()

	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	a := NewHtmlListing(NewFetcher(srv.Client(), ""), time.UTC, func() time.Time { return now }, zap.NewNop())
	src := types.SourceDescriptor{
		ScopeID:  "church-1",
		Strategy: types.HtmlListing,
		URL:      srv.URL + "/board",
		Selectors: types.Selectors{
			List:  "tr.row",
			Title: []string{".subject a"},
			Link:  []string{".subject a@href"},
			Date:  []string{".date"},
			Body:  []string{".missing@html", ".view_content@html"},
		},
	}

	items, err := a.FetchListing(context.Background(), src)
	if err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Title != "신년 예배 안내" || items[0].NaturalKey != srv.URL+"/board/1" {
		t.Fatalf("first item = %+v", items[0])
	}
	if !items[1].PublishedAt.Equal(now.AddDate(0, 0, -3)) {
		t.Fatalf("relative date = %v", items[1].PublishedAt)
	}

	if err := a.FetchDetail(context.Background(), src, &items[0]); err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if !strings.Contains(items[0].BodyHTML, "본문입니다") {
		t.Fatalf("body = %q", items[0].BodyHTML)
	}
	if items[0].ThumbnailURL != srv.URL+"/og.png" {
		t.Fatalf("thumbnail = %q", items[0].ThumbnailURL)
	}
	if len(items[0].Images) != 1 || items[0].Images[0] != srv.URL+"/img/1.jpg" {
		t.Fatalf("images = %v", items[0].Images)
	}

	if err := a.FetchDetail(context.Background(), src, &items[1]); !types.IsFetchError(err) {
		t.Fatalf("detail 404 should be FetchError, got %v", err)
	}
}

func TestRuleTableFirst(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div><span class="a"></span><span class="b" data-x="1">  two  words </span></div>`))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		rules []string
		want  string
	}{
		{[]string{".a", ".b"}, "two words"},
		{[]string{".b@data-x"}, "1"},
		{[]string{".missing@href", ".b@html"}, "two  words"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := NewRuleTable(tt.rules).First(doc.Selection); got != tt.want {
			t.Fatalf("rules %v = %q, want %q", tt.rules, got, tt.want)
		}
	}
}
