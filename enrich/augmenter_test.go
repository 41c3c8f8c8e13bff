package enrich

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"pcaview/common"
	"pcaview/store"
	"pcaview/types"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// fixedRand always returns v, clamped to the range.
type fixedRand struct{ v int }

func (f fixedRand) IntN(n int) int {
	if f.v >= n {
		return n - 1
	}
	return f.v
}

type fakeText struct {
	calls    atomic.Int32
	rewrite  string
	comments string
	err      error
}

func (f *fakeText) Generate(_ context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	if strings.Contains(prompt, "댓글") {
		return f.comments, nil
	}
	return f.rewrite, nil
}

type fakeImages struct {
	calls atomic.Int32
	ref   string
	err   error
}

func (f *fakeImages) Generate(context.Context, string) (string, error) {
	f.calls.Add(1)
	return f.ref, f.err
}

func seedContent(t *testing.T, st *store.Memory, body string) *types.Content {
	t.Helper()
	c := &types.Content{ScopeID: "church-1", NaturalKey: "k-" + fmt.Sprint(len(body)), Title: "신년 예배", Body: body}
	if err := st.CreateContent(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

func newTestAugmenter(st store.Store, text TextGenerator, images ImageGenerator, blob common.Blob, r Rand) *Augmenter {
	return NewAugmenter(Options{
		Store:          st,
		Text:           text,
		Images:         images,
		Blob:           blob,
		Rand:           r,
		ImageThreshold: 100,
	})
}

func TestProbabilityGate(t *testing.T) {
	a := newTestAugmenter(store.NewMemory(), nil, nil, nil, rand.New(rand.NewPCG(7, 11)))
	const trials = 10000
	hits := 0
	for i := 0; i < trials; i++ {
		if a.pass(30) {
			hits++
		}
	}
	if hits < 2800 || hits > 3200 {
		t.Fatalf("30%% gate passed %d/%d times", hits, trials)
	}

	if a.pass(0) {
		t.Fatal("threshold 0 must never pass")
	}
	for i := 0; i < 1000; i++ {
		if !a.pass(100) {
			t.Fatal("threshold 100 must always pass")
		}
	}
}

func TestBodyEligible(t *testing.T) {
	a := newTestAugmenter(store.NewMemory(), nil, nil, nil, fixedRand{})
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"empty", "", false},
		{"whitespace", "   \n", false},
		{"exactly max in runes", strings.Repeat("가", 5000), true},
		{"one over max", strings.Repeat("가", 5001), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.BodyEligible(tt.body); got != tt.want {
				t.Fatalf("BodyEligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAugmentRewritesAndGeneratesImage(t *testing.T) {
	st := store.NewMemory()
	c := seedContent(t, st, "원문 본문")
	text := &fakeText{rewrite: "다시 쓴 본문", comments: "좋은 소식이네요\n- 감사합니다\n"}
	images := &fakeImages{ref: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)}
	blob := common.NewMemoryBlob("https://cdn.example")

	// roll 1 passes both gates; comment count 1 + IntN(5) = 1
	a := newTestAugmenter(st, text, images, blob, fixedRand{v: 0})
	out, err := a.Augment(context.Background(), c.ID, true)
	if err != nil {
		t.Fatalf("Augment: %v", err)
	}
	if !out.Rewritten || out.ImageURL == "" || out.Comments != 1 {
		t.Fatalf("outcome = %+v", out)
	}

	got, _ := st.GetContent(context.Background(), c.ID)
	if got.Body != "다시 쓴 본문" || !got.IsAIRewritten {
		t.Fatalf("content = %+v", got)
	}
	if !strings.HasPrefix(got.ThumbnailURL, "https://cdn.example/contents/church-1/") || !strings.HasSuffix(got.ThumbnailURL, ".png") {
		t.Fatalf("thumbnail = %q", got.ThumbnailURL)
	}
	if blob.Len() != 1 {
		t.Fatalf("uploads = %d", blob.Len())
	}

	comments, _ := st.ListComments(context.Background(), c.ID)
	if len(comments) != 1 || comments[0].ExternalID != "ai-"+c.ID+"-1" || !comments[0].Guest || comments[0].Body != "좋은 소식이네요" {
		t.Fatalf("comments = %+v", comments)
	}

	// redelivery is a no-op
	calls := text.calls.Load()
	if _, err := a.Augment(context.Background(), c.ID, true); err != nil {
		t.Fatal(err)
	}
	if text.calls.Load() != calls || images.calls.Load() != 1 {
		t.Fatal("redelivered event must not call providers again")
	}
}

func TestAugmentWithoutAllowanceSkipsImage(t *testing.T) {
	st := store.NewMemory()
	c := seedContent(t, st, "본문")
	images := &fakeImages{ref: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)}
	a := newTestAugmenter(st, &fakeText{rewrite: "새 본문"}, images, common.NewMemoryBlob(""), fixedRand{v: 99})

	out, err := a.Augment(context.Background(), c.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Rewritten || images.calls.Load() != 0 {
		t.Fatalf("outcome = %+v, image calls = %d", out, images.calls.Load())
	}
	if out.Comments != 0 {
		t.Fatalf("roll 100 must close the 30%% comment gate, got %d comments", out.Comments)
	}
}

func TestAugmentFailuresYieldNothing(t *testing.T) {
	tests := []struct {
		name   string
		text   *fakeText
		images *fakeImages
		body   string
		want   Outcome
	}{
		{"rewrite error", &fakeText{err: errors.New("503")}, &fakeImages{}, "본문", Outcome{}},
		{"rewrite quota", &fakeText{err: &types.QuotaExceededError{Provider: "text-ai"}}, &fakeImages{}, "본문", Outcome{}},
		{"empty rewrite", &fakeText{}, &fakeImages{}, "본문", Outcome{}},
		{"body too long", &fakeText{rewrite: "x"}, &fakeImages{}, strings.Repeat("a", 5001), Outcome{}},
		{"image error", &fakeText{rewrite: "x"}, &fakeImages{err: errors.New("boom")}, "본문", Outcome{Rewritten: true}},
		{"image not base64", &fakeText{rewrite: "x"}, &fakeImages{ref: "data:image/png,raw"}, "본문", Outcome{Rewritten: true}},
		{"image bad scheme", &fakeText{rewrite: "x"}, &fakeImages{ref: "ftp://x/y.png"}, "본문", Outcome{Rewritten: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			c := seedContent(t, st, tt.body)
			blob := common.NewMemoryBlob("")
			a := newTestAugmenter(st, tt.text, tt.images, blob, fixedRand{v: 40})

			out, err := a.Augment(context.Background(), c.ID, true)
			if err != nil {
				t.Fatalf("stage failures must not propagate: %v", err)
			}
			if out != tt.want {
				t.Fatalf("outcome = %+v, want %+v", out, tt.want)
			}
			if blob.Len() != 0 {
				t.Fatal("nothing should be uploaded")
			}
			got, _ := st.GetContent(context.Background(), c.ID)
			if got.IsAIRewritten != tt.want.Rewritten || got.ThumbnailURL != "" {
				t.Fatalf("content = %+v", got)
			}
		})
	}
}

func TestAugmentDownloadsImageURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff\xe0fakejpeg"))
	}))
	defer srv.Close()

	st := store.NewMemory()
	c := seedContent(t, st, "본문")
	blob := common.NewMemoryBlob("https://cdn.example")
	a := NewAugmenter(Options{
		Store:          st,
		Text:           &fakeText{rewrite: "x"},
		Images:         &fakeImages{ref: srv.URL + "/generated.jpg"},
		Blob:           blob,
		HTTPClient:     srv.Client(),
		Rand:           fixedRand{v: 99},
		ImageThreshold: 100,
	})
	out, err := a.Augment(context.Background(), c.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out.ImageURL, ".jpg") {
		t.Fatalf("image url = %q", out.ImageURL)
	}
}

func TestGenerateCommentsIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	c := seedContent(t, st, "본문")
	text := &fakeText{comments: "1. 첫 댓글\n2. 둘째 댓글\n3. 셋째 댓글\n4. 넷째\n5. 다섯째\n6. 여섯째"}
	a := newTestAugmenter(st, text, nil, nil, fixedRand{v: 4}) // roll 5 passes 30, count 1+4 = 5

	log := a.log
	if n := a.generateComments(context.Background(), c, log); n != 5 {
		t.Fatalf("stored %d comments, want 5", n)
	}
	if n := a.generateComments(context.Background(), c, log); n != 5 {
		t.Fatalf("second pass stored %d", n)
	}
	comments, _ := st.ListComments(context.Background(), c.ID)
	if len(comments) != 5 || comments[0].Body != "첫 댓글" {
		t.Fatalf("comments = %+v", comments)
	}

	text.comments = "  \n\n"
	c2 := seedContent(t, st, "다른 본문")
	if n := a.generateComments(context.Background(), c2, log); n != 0 {
		t.Fatalf("empty response stored %d comments", n)
	}
}

func TestHTTPImages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
		quota   bool
	}{
		{"b64", 200, `{"data":[{"b64_json":"QUJD"}]}`, "data:image/png;base64,QUJD", false, false},
		{"url", 200, `{"data":[{"url":"https://img.example/a.png"}]}`, "https://img.example/a.png", false, false},
		{"empty", 200, `{"data":[]}`, "", true, false},
		{"rate limited", 429, `{}`, "", true, true},
		{"server error", 500, `{"error":"x"}`, "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer key" {
					t.Errorf("missing bearer token")
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			got, err := NewHTTPImages("key", srv.URL, "gpt-image-1", srv.Client()).Generate(context.Background(), "p")
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Fatalf("Generate = %q, %v", got, err)
			}
			if types.IsQuotaExceeded(err) != tt.quota {
				t.Fatalf("quota = %v, want %v", types.IsQuotaExceeded(err), tt.quota)
			}
		})
	}
}
