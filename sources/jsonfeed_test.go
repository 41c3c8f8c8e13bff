package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pcaview/types"
)

func TestJsonFeedPayloadShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"bare array", `[{"subject":"첫 글","url":"/posts/1","created_at":"2025.01.05","media":["/img/a.jpg",{"src":"/img/b.jpg"}]}]`},
		{"data wrapper", `{"data":[{"title":"첫 글","link":"/posts/1","date":"2025-01-05","images":[{"url":"/img/a.jpg"},"/img/b.jpg"]}]}`},
		{"nested data.items", `{"data":{"items":[{"title":"첫 글","href":"/posts/1","timestamp":1736035200,"photos":["/img/a.jpg","/img/b.jpg"]}]}}`},
		{"result wrapper", `{"result":[{"headline":"첫 글","permalink":"/posts/1","pubDate":"2025-01-05","attachments":["/img/a.jpg","/img/b.jpg"]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.payload)
			}))
			defer srv.Close()

			a := NewJsonFeed(NewFetcher(srv.Client(), ""), time.UTC, time.Now)
			items, err := a.FetchListing(context.Background(), types.SourceDescriptor{ScopeID: "s1", URL: srv.URL + "/api/feed"})
			if err != nil {
				t.Fatalf("FetchListing: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("got %d items, want 1", len(items))
			}
			it := items[0]
			if it.Title != "첫 글" {
				t.Fatalf("title = %q", it.Title)
			}
			if it.Link != srv.URL+"/posts/1" {
				t.Fatalf("link = %q", it.Link)
			}
			if len(it.Images) != 2 || it.Images[0] != srv.URL+"/img/a.jpg" || it.Images[1] != srv.URL+"/img/b.jpg" {
				t.Fatalf("images = %v", it.Images)
			}
			if it.ThumbnailURL != it.Images[0] {
				t.Fatalf("thumbnail = %q, want first image", it.ThumbnailURL)
			}
			if y, m, d := it.PublishedAt.Date(); y != 2025 || m != time.January || d != 5 {
				t.Fatalf("published = %v", it.PublishedAt)
			}
		})
	}
}

func TestJsonFeedSkipsIncompleteEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"title":""},{"link":"/x"},{"title":"ok","id":42}]}`)
	}))
	defer srv.Close()

	a := NewJsonFeed(NewFetcher(srv.Client(), ""), time.UTC, time.Now)
	items, err := a.FetchListing(context.Background(), types.SourceDescriptor{ScopeID: "s1", URL: srv.URL})
	if err != nil {
		t.Fatalf("FetchListing: %v", err)
	}
	if len(items) != 1 || items[0].NaturalKey != "s1:42" {
		t.Fatalf("items = %+v", items)
	}
}

func TestJsonFeedRejectsUnknownEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	a := NewJsonFeed(NewFetcher(srv.Client(), ""), time.UTC, time.Now)
	_, err := a.FetchListing(context.Background(), types.SourceDescriptor{ScopeID: "s1", URL: srv.URL})
	var perr *types.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError, got %v", err)
	}
}
