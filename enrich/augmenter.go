// Package enrich rewrites ingested content and optionally adds a generated
// thumbnail and synthetic guest comments.
package enrich

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"pcaview/common"
	"pcaview/config"
	"pcaview/ratelimit"
	"pcaview/store"
	"pcaview/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Rand draws uniform integers in [0, n). *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// Options wires an Augmenter.
type Options struct {
	Store            store.Store
	Text             TextGenerator
	TextLimiter      *ratelimit.Limiter
	Images           ImageGenerator
	ImageLimiter     *ratelimit.Limiter
	Blob             common.Blob
	HTTPClient       *http.Client
	Rand             Rand
	ImageThreshold   int
	CommentThreshold int
	MaxBodyLength    int
	Logger           *zap.Logger
}

// Augmenter handles ContentIngested events. Every stage fails closed: a
// provider error skips the stage and later stages that depend on it.
type Augmenter struct {
	store            store.Store
	text             TextGenerator
	textLimiter      *ratelimit.Limiter
	images           ImageGenerator
	imageLimiter     *ratelimit.Limiter
	blob             common.Blob
	http             *http.Client
	imageThreshold   int
	commentThreshold int
	maxBody          int
	log              *zap.Logger

	randMu sync.Mutex
	rand   Rand
}

func NewAugmenter(opts Options) *Augmenter {
	if opts.MaxBodyLength <= 0 {
		opts.MaxBodyLength = config.MaxBodyLength
	}
	if opts.CommentThreshold <= 0 {
		opts.CommentThreshold = config.CommentThreshold
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: config.FetchTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.TextLimiter == nil {
		opts.TextLimiter = ratelimit.New(config.ProviderText, ratelimit.Options{})
	}
	if opts.ImageLimiter == nil {
		opts.ImageLimiter = ratelimit.New(config.ProviderImage, ratelimit.Options{})
	}
	return &Augmenter{
		store:            opts.Store,
		text:             opts.Text,
		textLimiter:      opts.TextLimiter,
		images:           opts.Images,
		imageLimiter:     opts.ImageLimiter,
		blob:             opts.Blob,
		http:             opts.HTTPClient,
		imageThreshold:   opts.ImageThreshold,
		commentThreshold: opts.CommentThreshold,
		maxBody:          opts.MaxBodyLength,
		log:              opts.Logger,
		rand:             opts.Rand,
	}
}

// Outcome reports what one augmentation produced.
type Outcome struct {
	Rewritten bool
	ImageURL  string
	Comments  int
}

// Handle is the events.Handler for ContentIngested.
func (a *Augmenter) Handle(ctx context.Context, ev types.Event) error {
	_, err := a.Augment(ctx, ev.ContentID, ev.AllowImage)
	return err
}

// Augment runs rewrite, image and comment stages for one content. Only
// persistence failures are returned.
func (a *Augmenter) Augment(ctx context.Context, contentID string, allowImage bool) (Outcome, error) {
	var out Outcome
	c, err := a.store.GetContent(ctx, contentID)
	if err != nil {
		return out, fmt.Errorf("load content %s: %w", contentID, err)
	}
	log := a.log.With(zap.String("content", c.ID), zap.String("scope", c.ScopeID))

	if c.IsAIRewritten {
		log.Debug("already rewritten, skipping")
		return out, nil
	}
	if !a.BodyEligible(c.Body) {
		log.Debug("body not eligible for rewrite", zap.Int("runes", utf8.RuneCountInString(c.Body)))
		return out, nil
	}

	body, ok := a.rewrite(ctx, c, log)
	if !ok {
		return out, nil
	}
	if err := a.store.UpdateContentBody(ctx, c.ID, body, true); err != nil {
		return out, fmt.Errorf("save rewritten body: %w", err)
	}
	c.Body = body
	out.Rewritten = true

	if allowImage {
		if url := a.generateImage(ctx, c, log); url != "" {
			if err := a.store.UpdateContentThumbnail(ctx, c.ID, url); err != nil {
				log.Warn("save thumbnail failed", zap.Error(err))
			} else {
				out.ImageURL = url
			}
		}
	}

	out.Comments = a.generateComments(ctx, c, log)
	log.Info("content augmented",
		zap.Bool("image", out.ImageURL != ""),
		zap.Int("comments", out.Comments))
	return out, nil
}

// BodyEligible reports whether body is non-empty and at most the maximum
// length in characters.
func (a *Augmenter) BodyEligible(body string) bool {
	if strings.TrimSpace(body) == "" {
		return false
	}
	return utf8.RuneCountInString(body) <= a.maxBody
}

const rewritePrompt = `다음 글을 같은 의미를 유지하면서 자연스러운 한국어 기사 문체로 다시 작성하세요.
HTML 태그 없이 본문만 출력하세요.

제목: %s

본문:
%s`

func (a *Augmenter) rewrite(ctx context.Context, c *types.Content, log *zap.Logger) (string, bool) {
	if a.text == nil {
		return "", false
	}
	var out string
	err := a.textLimiter.Do(ctx, func(ctx context.Context) error {
		var gerr error
		out, gerr = a.text.Generate(ctx, fmt.Sprintf(rewritePrompt, c.Title, c.Body))
		return gerr
	})
	if err != nil {
		log.Warn("rewrite failed", zap.Error(err))
		return "", false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		log.Warn("rewrite returned empty text")
		return "", false
	}
	return out, true
}

const imagePrompt = "Editorial illustration for a Korean community news article titled %q. No text, no logos."

// generateImage returns the uploaded image URL or "" on any failure.
func (a *Augmenter) generateImage(ctx context.Context, c *types.Content, log *zap.Logger) string {
	if a.images == nil || a.blob == nil {
		return ""
	}
	if !a.pass(a.imageThreshold) {
		log.Debug("image gate closed")
		return ""
	}

	var ref string
	err := a.imageLimiter.Do(ctx, func(ctx context.Context) error {
		var gerr error
		ref, gerr = a.images.Generate(ctx, fmt.Sprintf(imagePrompt, c.Title))
		return gerr
	})
	if err != nil {
		log.Warn("image generation failed", zap.Error(err))
		return ""
	}

	img, err := DecodeImage(ctx, a.http, ref)
	if err != nil {
		log.Warn("image decode failed", zap.Error(err))
		return ""
	}
	path := fmt.Sprintf("contents/%s/%s.%s", c.ScopeID, uuid.NewString(), img.Ext)
	url, err := a.blob.Put(ctx, path, img.Data, img.ContentType)
	if err != nil {
		log.Warn("image upload failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	return url
}

const commentPrompt = `다음 글을 읽은 커뮤니티 회원이 남길 법한 짧은 댓글 %d개를 작성하세요.
한 줄에 댓글 하나씩, 번호나 기호 없이 출력하세요.

제목: %s

본문:
%s`

var listMarkerRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// generateComments stores between the configured minimum and maximum guest
// comments when the gate passes, and returns how many were stored.
func (a *Augmenter) generateComments(ctx context.Context, c *types.Content, log *zap.Logger) int {
	if a.text == nil || !a.pass(a.commentThreshold) {
		return 0
	}
	n := config.MinSyntheticComments + a.intN(config.MaxSyntheticComments-config.MinSyntheticComments+1)

	var raw string
	err := a.textLimiter.Do(ctx, func(ctx context.Context) error {
		var gerr error
		raw, gerr = a.text.Generate(ctx, fmt.Sprintf(commentPrompt, n, c.Title, c.Body))
		return gerr
	})
	if err != nil {
		log.Warn("comment generation failed", zap.Error(err))
		return 0
	}

	stored := 0
	for _, line := range strings.Split(raw, "\n") {
		if stored >= n {
			break
		}
		body := strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		if body == "" {
			continue
		}
		pc := &types.PlatformComment{
			ExternalID: fmt.Sprintf("ai-%s-%d", c.ID, stored+1),
			ContentID:  c.ID,
			Author:     "guest",
			Body:       body,
			Guest:      true,
		}
		if _, err := a.store.UpsertComment(ctx, pc); err != nil {
			log.Warn("save comment failed", zap.Error(err))
			continue
		}
		stored++
	}
	return stored
}

// pass draws uniform(1,100) and compares it to threshold.
func (a *Augmenter) pass(threshold int) bool {
	return a.intN(100)+1 <= threshold
}

func (a *Augmenter) intN(n int) int {
	a.randMu.Lock()
	defer a.randMu.Unlock()
	return a.rand.IntN(n)
}
