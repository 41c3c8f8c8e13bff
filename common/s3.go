package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Blob is the blob storage collaborator: it stores bytes and returns a public URL.
type Blob interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// S3Config contains minimal configuration for creating an S3 client.
// Values are optional and will fall back to the standard AWS config/credential chain.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every object key.
	Prefix string
	// PublicBaseURL is the CDN or bucket URL objects are served from. When
	// empty the virtual-hosted S3 URL is used.
	PublicBaseURL string
	// Region to use for requests, e.g. "ap-northeast-2". If empty, AWS defaults apply.
	Region string
	// Profile selects a named shared config/credentials profile. If empty, default chain applies.
	Profile string
	// UsePathStyle forces path-style addressing (useful for some S3-compatible providers).
	UsePathStyle bool
}

// S3 wraps the AWS SDK for Go v2 S3 client with a narrow interface we can mock.
type S3 struct {
	client *s3.Client
	cfg    S3Config
}

var _ Blob = (*S3)(nil)

// NewS3 creates a new S3 wrapper using the default AWS configuration chain,
// with optional overrides from S3Config.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3{client: c, cfg: cfg}, nil
}

// Put uploads data under path and returns its public URL.
func (s *S3) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	key := s.key(path)
	in := &s3.PutObjectInput{
		Bucket:       aws.String(s.cfg.Bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		CacheControl: aws.String("public, max-age=31536000"),
		ACL:          s3types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("s3 put %s: %s: %s", key, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// PublicURL returns the URL an object key is served from.
func (s *S3) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.UsePathStyle || s.cfg.Region == "" {
		return fmt.Sprintf("https://s3.amazonaws.com/%s/%s", s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

func (s *S3) key(path string) string {
	path = strings.TrimLeft(path, "/")
	if s.cfg.Prefix == "" {
		return path
	}
	return strings.Trim(s.cfg.Prefix, "/") + "/" + path
}

// MemoryBlob keeps objects in process; used when S3 is not configured.
type MemoryBlob struct {
	mu      sync.Mutex
	BaseURL string
	objects map[string][]byte
}

var _ Blob = (*MemoryBlob)(nil)

// NewMemoryBlob returns an empty in-process blob store.
func NewMemoryBlob(baseURL string) *MemoryBlob {
	if baseURL == "" {
		baseURL = "memory://blob"
	}
	return &MemoryBlob{BaseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string][]byte)}
}

func (m *MemoryBlob) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = strings.TrimLeft(path, "/")
	m.objects[path] = append([]byte(nil), data...)
	return m.BaseURL + "/" + path, nil
}

// Get returns a stored object.
func (m *MemoryBlob) Get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[strings.TrimLeft(path, "/")]
	return b, ok
}

// Len returns the number of stored objects.
func (m *MemoryBlob) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
