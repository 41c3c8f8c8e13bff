package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pcaview/ratelimit"
	"pcaview/types"

	"google.golang.org/api/option"
)

type youtubeFake struct {
	srv    *httptest.Server
	hits   atomic.Int32
	status int
}

func newYouTubeFake(t *testing.T, status int) *youtubeFake {
	t.Helper()
	f := &youtubeFake{status: status}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if f.status != http.StatusOK {
			w.WriteHeader(f.status)
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"quotaExceeded","errors":[{"reason":"quotaExceeded"}]}}`, f.status)
			return
		}
		if r.URL.Query().Get("channelId") != "UC123" {
			t.Errorf("channelId = %q", r.URL.Query().Get("channelId"))
		}
		fmt.Fprint(w, `{"items":[
			{"id":{"videoId":"v1"},"snippet":{"title":"주일 예배","description":"설교","publishedAt":"2025-03-02T02:00:00Z",
			 "thumbnails":{"default":{"url":"https://i.ytimg.com/vi/v1/default.jpg"},"high":{"url":"https://i.ytimg.com/vi/v1/hq.jpg"}}}},
			{"id":{},"snippet":{"title":"playlist"}}
		]}`)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *youtubeFake) api(t *testing.T, limiter *ratelimit.Limiter) *YouTubeAPI {
	t.Helper()
	yt, err := NewYouTubeAPI(context.Background(), "test-key", "", limiter,
		option.WithEndpoint(f.srv.URL+"/"),
		option.WithHTTPClient(f.srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewYouTubeAPI: %v", err)
	}
	return yt
}

func TestYouTubeLatestVideos(t *testing.T) {
	f := newYouTubeFake(t, http.StatusOK)
	items, err := f.api(t, nil).LatestVideos(context.Background(), "UC123", 5)
	if err != nil {
		t.Fatalf("LatestVideos: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.Link != "https://www.youtube.com/watch?v=v1" || it.Title != "주일 예배" {
		t.Fatalf("item = %+v", it)
	}
	if it.ThumbnailURL != "https://i.ytimg.com/vi/v1/hq.jpg" {
		t.Fatalf("thumbnail = %q", it.ThumbnailURL)
	}
	if !it.PublishedAt.Equal(time.Date(2025, 3, 2, 2, 0, 0, 0, time.UTC)) {
		t.Fatalf("publishedAt = %v", it.PublishedAt)
	}
}

func TestYouTubeQuotaStopsCallsForTheDay(t *testing.T) {
	f := newYouTubeFake(t, http.StatusForbidden)
	limiter := ratelimit.New("youtube", ratelimit.Options{})
	yt := f.api(t, limiter)
	ctx := context.Background()

	_, err := yt.LatestVideos(ctx, "UC123", 5)
	if !types.IsQuotaExceeded(err) {
		t.Fatalf("first call = %v; want quota exceeded", err)
	}
	if exceeded, _ := limiter.Exceeded(ctx); !exceeded {
		t.Fatalf("quota flag not set after 403")
	}

	_, err = yt.LatestVideos(ctx, "UC123", 5)
	if !types.IsQuotaExceeded(err) {
		t.Fatalf("second call = %v; want quota exceeded", err)
	}
	if got := f.hits.Load(); got != 1 {
		t.Fatalf("requests = %d; want 1", got)
	}
}
