package common

import (
	"context"
	"testing"
)

func TestS3PublicURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  S3Config
		key  string
		want string
	}{
		{"cdn base", S3Config{Bucket: "b", PublicBaseURL: "https://cdn.test/"}, "contents/s/x.png", "https://cdn.test/contents/s/x.png"},
		{"virtual hosted", S3Config{Bucket: "b", Region: "ap-northeast-2"}, "k.png", "https://b.s3.ap-northeast-2.amazonaws.com/k.png"},
		{"path style", S3Config{Bucket: "b", Region: "ap-northeast-2", UsePathStyle: true}, "k.png", "https://s3.amazonaws.com/b/k.png"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := &S3{cfg: c.cfg}
			if got := s.PublicURL(c.key); got != c.want {
				t.Fatalf("PublicURL = %q; want %q", got, c.want)
			}
		})
	}
}

func TestS3KeyPrefix(t *testing.T) {
	s := &S3{cfg: S3Config{Bucket: "b", Prefix: "/media/"}}
	if got := s.key("/contents/a.png"); got != "media/contents/a.png" {
		t.Fatalf("key = %q", got)
	}
	s.cfg.Prefix = ""
	if got := s.key("contents/a.png"); got != "contents/a.png" {
		t.Fatalf("key = %q", got)
	}
}

func TestMemoryBlobPut(t *testing.T) {
	m := NewMemoryBlob("https://blob.test")
	url, err := m.Put(context.Background(), "/contents/s1/a.png", []byte{1, 2, 3}, "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://blob.test/contents/s1/a.png" {
		t.Fatalf("url = %q", url)
	}
	if b, ok := m.Get("contents/s1/a.png"); !ok || len(b) != 3 {
		t.Fatalf("Get = %v, %v", b, ok)
	}
}
