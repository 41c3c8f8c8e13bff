package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Strategy selects the adapter used to fetch a source.
type Strategy string

const (
	PdfListing   Strategy = "pdf_listing"
	JsonFeed     Strategy = "json_feed"
	HtmlListing  Strategy = "html_listing"
	VideoChannel Strategy = "video_channel"
	RssFeed      Strategy = "rss_feed"
)

// Content types assigned to ingested rows.
const (
	ContentNews     = "NEWS"
	ContentBulletin = "BULLETIN"
	ContentVideo    = "VIDEO"
	ContentArticle  = "ARTICLE"
)

// Selectors holds per-field ordered rule tables. The first rule that yields a
// non-empty value wins.
type Selectors struct {
	List  string   `yaml:"list" json:"list,omitempty"`
	Title []string `yaml:"title" json:"title,omitempty"`
	Link  []string `yaml:"link" json:"link,omitempty"`
	Date  []string `yaml:"date" json:"date,omitempty"`
	Body  []string `yaml:"body" json:"body,omitempty"`
	Image []string `yaml:"image" json:"image,omitempty"`
}

// SourceDescriptor describes one scope's source and how to fetch it.
type SourceDescriptor struct {
	ScopeID     string    `yaml:"scope" json:"scope_id"`
	Strategy    Strategy  `yaml:"strategy" json:"strategy"`
	URL         string    `yaml:"url" json:"url"`
	ContentType string    `yaml:"type" json:"type"`
	ChannelID   string    `yaml:"channel_id" json:"channel_id,omitempty"`
	MaxItems    int       `yaml:"max_items" json:"max_items,omitempty"`
	Selectors   Selectors `yaml:"selectors" json:"selectors"`
}

// CanonicalItem is the normalized form of one crawled entry before persistence.
type CanonicalItem struct {
	NaturalKey   string            `json:"natural_key"`
	Title        string            `json:"title"`
	BodyHTML     string            `json:"body_html,omitempty"`
	PublishedAt  time.Time         `json:"published_at"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	SourceType   Strategy          `json:"source_type"`
	Link         string            `json:"link,omitempty"`
	ExternalID   string            `json:"external_id,omitempty"`
	Images       []string          `json:"images,omitempty"`
	NewsItems    []json.RawMessage `json:"news_items,omitempty"`
}

// Content is the canonical persisted record. (ScopeID, NaturalKey) is unique.
type Content struct {
	ID            string    `json:"id"`
	ScopeID       string    `json:"scope_id"`
	NaturalKey    string    `json:"natural_key"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	FileURL       string    `json:"file_url,omitempty"`
	ThumbnailURL  string    `json:"thumbnail_url,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
	Type          string    `json:"type"`
	IsAIRewritten bool      `json:"is_ai_rewritten"`
	Attachments   []string  `json:"attachments,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Trend is a trending topic whose news_items grow append-only.
type Trend struct {
	ID         string            `json:"id"`
	ScopeID    string            `json:"scope_id"`
	NaturalKey string            `json:"natural_key"`
	Title      string            `json:"title"`
	NewsItems  []json.RawMessage `json:"news_items"`
	CreatedAt  time.Time         `json:"created_at"`
}

// PlatformComment is a comment keyed by an externally supplied id.
type PlatformComment struct {
	ExternalID string    `json:"external_id"`
	ContentID  string    `json:"content_id"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	Likes      int       `json:"likes"`
	Dislikes   int       `json:"dislikes"`
	Guest      bool      `json:"guest"`
	CreatedAt  time.Time `json:"created_at"`
}

// Scope is the boundary within which natural keys are unique.
type Scope struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GenerateID creates a short, stable ID by hashing the input.
func GenerateID(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
