package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pcaview/types"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name      string
		wantTitle string
		wantOK    bool
	}{
		{"2025.0105-900호.pdf", "2025.01.05 900호", true},
		{"2025.0105-900%ED%98%B8.pdf", "2025.01.05 900호", true},
		{"20250105.pdf", "2025.01.05", true},
		{"bulletin_20250105.pdf", "2025.01.05", true},
		{"2025.01.05.pdf", "2025.01.05", true},
		{"2025-01-05_900.pdf", "2025.01.05 900호", true},
		{"notice.pdf", "", false},
		{"2025.1340.pdf", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, ok := ParseFilename(tt.name, time.UTC)
			if ok != tt.wantOK {
				t.Fatalf("ParseFilename(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			}
			if ok && tok.Title() != tt.wantTitle {
				t.Fatalf("Title() = %q, want %q", tok.Title(), tt.wantTitle)
			}
		})
	}
}

func TestPdfListingFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
			<a href="/files/2025.0105-900호.pdf">이번 주 주보</a>
			<a href="/files/2025.0105-900호.pdf">중복 링크</a>
			<a href="/files/guide.PDF">안내문</a>
			<a href="/board/list">게시판</a>
		</body></html>`)
	}))
	defer srv.Close()

	kst := time.FixedZone("KST", 9*3600)
	a := NewPdfListing(NewFetcher(srv.Client(), ""), kst)
	items, err := a.FetchListing(context.Background(), types.SourceDescriptor{ScopeID: "church-1", URL: srv.URL + "/bulletins"})
	if err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(items), items)
	}

	first := items[0]
	if first.Title != "2025.01.05 900호" {
		t.Fatalf("title = %q", first.Title)
	}
	if want := time.Date(2025, 1, 5, 0, 0, 0, 0, kst); !first.PublishedAt.Equal(want) {
		t.Fatalf("published = %v, want %v", first.PublishedAt, want)
	}
	if first.NaturalKey == "" || first.Link == "" {
		t.Fatalf("missing key or link: %+v", first)
	}
	if items[1].Title != "안내문" {
		t.Fatalf("undated pdf title = %q, want anchor text", items[1].Title)
	}
}

func TestPdfListingFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewPdfListing(NewFetcher(srv.Client(), ""), time.UTC)
	_, err := a.FetchListing(context.Background(), types.SourceDescriptor{ScopeID: "s", URL: srv.URL})
	if !types.IsFetchError(err) {
		t.Fatalf("want FetchError, got %v", err)
	}
}
