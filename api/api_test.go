package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pcaview/ingestion"
	"pcaview/ratelimit"
	"pcaview/scheduler"
	"pcaview/types"

	"github.com/gin-gonic/gin"
)

type stubRunner struct{ err error }

func (s stubRunner) RunScope(_ context.Context, src types.SourceDescriptor) (ingestion.Result, error) {
	return ingestion.Result{ScopeID: src.ScopeID, Created: 1}, s.err
}

type recorder struct {
	events []types.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev types.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func newTestRouter(runErr error, events *recorder) (*gin.Engine, *ratelimit.Set) {
	gin.SetMode(gin.TestMode)
	srcs := []types.SourceDescriptor{{ScopeID: "church-1", Strategy: types.PdfListing, URL: "https://example.com/bulletins"}}
	limiters := ratelimit.NewSet()
	limiters.Add(ratelimit.New("news-api", ratelimit.Options{}))
	return NewRouter(Deps{
		Scheduler: scheduler.New(stubRunner{err: runErr}, srcs, scheduler.Options{}),
		Events:    events,
		Limiters:  limiters,
	}), limiters
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(nil, &recorder{})
	if w := serve(r, http.MethodGet, "/health"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestScopeRoutes(t *testing.T) {
	tests := []struct {
		name   string
		runErr error
		path   string
		want   int
	}{
		{"run ok", nil, "/api/scopes/church-1/run", http.StatusOK},
		{"unknown scope", nil, "/api/scopes/nope/run", http.StatusNotFound},
		{"listing failure", errors.New("listing down"), "/api/scopes/church-1/run", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(tt.runErr, &recorder{})
			w := serve(r, http.MethodPost, tt.path)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	r, _ := newTestRouter(nil, &recorder{})
	serve(r, http.MethodPost, "/api/scopes/church-1/run")
	w := serve(r, http.MethodGet, "/api/scopes")
	var body struct {
		Scopes []ScopeView `json:"scopes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Scopes) != 1 || body.Scopes[0].Status.State != scheduler.StateComplete || body.Scopes[0].Status.Created != 1 {
		t.Fatalf("scopes = %+v", body.Scopes)
	}
}

func TestTagSyncRoute(t *testing.T) {
	events := &recorder{}
	r, _ := newTestRouter(nil, events)
	w := serve(r, http.MethodPost, "/api/tags/%EC%84%B1%ED%83%84/sync?scope=church-1")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if len(events.events) != 1 {
		t.Fatalf("events = %+v", events.events)
	}
	ev := events.events[0]
	if ev.Kind != types.TagSyncRequested || ev.Tag != "성탄" || ev.ScopeID != "church-1" {
		t.Fatalf("event = %+v", ev)
	}

	failing, _ := newTestRouter(nil, &recorder{err: errors.New("queue full")})
	if w := serve(failing, http.MethodPost, "/api/tags/x/sync"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestQuotaReset(t *testing.T) {
	r, limiters := newTestRouter(nil, &recorder{})
	l, _ := limiters.Get("news-api")
	ctx := context.Background()
	if err := l.MarkExceeded(ctx); err != nil {
		t.Fatal(err)
	}

	w := serve(r, http.MethodGet, "/api/quota")
	var body struct {
		Providers []QuotaView `json:"providers"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Providers) != 1 || !body.Providers[0].Exceeded {
		t.Fatalf("providers = %+v", body.Providers)
	}

	if w := serve(r, http.MethodDelete, "/api/quota/news-api"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if exceeded, _ := l.Exceeded(ctx); exceeded {
		t.Fatal("quota flag still set after reset")
	}
	if w := serve(r, http.MethodDelete, "/api/quota/unknown"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
