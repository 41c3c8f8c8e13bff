package deduplication

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizeTitleAndURL(t *testing.T) {
	cases := []struct {
		name          string
		url           string
		title         string
		wantNormURL   string
		wantNormTitle string
	}{
		{"simple", "https://example.com/path", "Hello World", "https://example.com/path", "hello world"},
		{"utm and fragment", "https://example.com/path?utm_source=feed#section", "  Hello   World  ", "https://example.com/path", "hello world"},
		{"uppercase host", "HTTP://Example.COM/", "TiTle", "http://example.com", "title"},
		{"tracking params", "https://example.com/?fbclid=XYZ&gclid=ABC&utm_medium=1", "T", "https://example.com", "t"},
		{"korean path kept", "https://church.test/files/2025.0105-900호.pdf", "주보", "https://church.test/files/2025.0105-900%ED%98%B8.pdf", "주보"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if nu := NormalizeURL(c.url); nu != c.wantNormURL {
				t.Fatalf("NormalizeURL(%q) = %q; want %q", c.url, nu, c.wantNormURL)
			}
			if nt := NormalizeTitle(c.title); nt != c.wantNormTitle {
				t.Fatalf("NormalizeTitle(%q) = %q; want %q", c.title, nt, c.wantNormTitle)
			}
		})
	}
}

func TestNaturalKey(t *testing.T) {
	cases := []struct {
		name  string
		scope string
		link  string
		token string
		want  string
	}{
		{"absolute url", "s1", "https://a.test/x?utm_source=1", "", "https://a.test/x"},
		{"relative falls back to token", "s1", "files/a.pdf", "2025.0105-900", "s1:2025.0105-900"},
		{"relative no token uses filename", "s1", "files/a.pdf", "", "s1:a.pdf"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := NaturalKey(c.scope, c.link, c.token); got != c.want {
				t.Fatalf("NaturalKey = %q; want %q", got, c.want)
			}
		})
	}
}

func TestScopedHashSeparatesScopes(t *testing.T) {
	a := ScopedHash("s1", "https://a.test/x")
	b := ScopedHash("s2", "https://a.test/x")
	if a == b {
		t.Fatalf("identical keys in different scopes share a hash")
	}
	if a != ScopedHash("s1", "https://a.test/x") {
		t.Fatalf("ScopedHash not stable")
	}
}

type fakeBloom struct {
	set  map[string]bool
	err  error
	adds int
}

func (f *fakeBloom) Exists(_ context.Context, h string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.set[h], nil
}

func (f *fakeBloom) Add(_ context.Context, h string) error {
	f.adds++
	f.set[h] = true
	return nil
}

func TestGuardSeen(t *testing.T) {
	ctx := context.Background()
	confirmCalls := 0
	confirm := func(v bool) Confirm {
		return func(context.Context) (bool, error) { confirmCalls++; return v, nil }
	}

	bloom := &fakeBloom{set: map[string]bool{}}
	g := NewGuard(bloom, nil)

	seen, err := g.Seen(ctx, "s", "k", confirm(true))
	if err != nil || seen {
		t.Fatalf("bloom miss: seen=%v err=%v; want false", seen, err)
	}
	if confirmCalls != 0 {
		t.Fatalf("bloom miss still hit the store")
	}

	g.Remember(ctx, "s", "k")
	seen, _ = g.Seen(ctx, "s", "k", confirm(false))
	if seen || confirmCalls != 1 {
		t.Fatalf("bloom false positive not confirmed: seen=%v calls=%d", seen, confirmCalls)
	}

	bloom.err = errors.New("redis down")
	seen, _ = g.Seen(ctx, "s", "other", confirm(true))
	if !seen || confirmCalls != 2 {
		t.Fatalf("bloom error did not fall back to store")
	}

	plain := NewGuard(nil, nil)
	seen, _ = plain.Seen(ctx, "s", "k", confirm(true))
	if !seen {
		t.Fatalf("guard without bloom must confirm")
	}
	plain.Remember(ctx, "s", "k")
}
