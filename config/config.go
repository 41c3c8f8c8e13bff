package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pcaview/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds process-wide settings. Values come from the environment (a .env
// file is loaded first when present) and the YAML source catalog.
type Config struct {
	Env         string
	HTTPPort    string
	Timezone    string
	SourcesFile string
	Cron        string
	Workers     int

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	S3          S3Config
	Text        TextConfig
	Image       ImageConfig
	Search      SearchConfig
	TagAPI      TagAPIConfig
	YouTube     YouTubeConfig
	Limits      map[string]LimitConfig

	Sources []types.SourceDescriptor

	location *time.Location
}

// RedisConfig configures the shared limiter/quota store and the bloom prefilter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	BloomKey string
}

// KafkaConfig configures the durable job queue.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// S3Config configures blob storage.
type S3Config struct {
	Bucket        string
	Region        string
	Profile       string
	Prefix        string
	PublicBaseURL string
	UsePathStyle  bool
}

// TextConfig configures the generative-text provider.
type TextConfig struct {
	APIKey string
	Model  string
}

// ImageConfig configures the generative-image provider.
type ImageConfig struct {
	APIKey   string
	Endpoint string
	Model    string
}

// SearchConfig configures the two news search providers.
type SearchConfig struct {
	ScrapeURL    string
	APIURL       string
	ClientID     string
	ClientSecret string
	AllowPattern string
}

// TagAPIConfig configures the third-party tag search API.
type TagAPIConfig struct {
	URL    string
	APIKey string
}

// YouTubeConfig enables the Data API path of the video adapter.
type YouTubeConfig struct {
	APIKey             string
	ServiceAccountFile string
}

// LimitConfig is the sliding-window budget of one provider.
type LimitConfig struct {
	Max    int
	Window time.Duration
}

type sourceCatalog struct {
	Sources []types.SourceDescriptor `yaml:"sources"`
}

// Load reads .env (if present), the environment and the source catalog.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnvOrDefault("APP_ENV", "development"),
		HTTPPort:    getEnvOrDefault("PORT", "8080"),
		Timezone:    getEnvOrDefault("TZ_NAME", "Asia/Seoul"),
		SourcesFile: getEnvOrDefault("SOURCES_FILE", "sources.yaml"),
		Cron:        getEnvOrDefault("INGEST_CRON", "0 * * * *"),
		Workers:     getEnvInt("WORKERS", DefaultWorkers),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASS"),
			DB:       getEnvInt("REDIS_DB", 0),
			BloomKey: getEnvOrDefault("BLOOM_KEY", "contents:bloom"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BOOTSTRAP_SERVERS")),
			Topic:   getEnvOrDefault("KAFKA_TOPIC", "pcaview-enrichment-jobs"),
			GroupID: getEnvOrDefault("KAFKA_GROUP_ID", "pcaview-enrichment-workers"),
		},
		S3: S3Config{
			Bucket:        strings.TrimSpace(os.Getenv("S3_BUCKET")),
			Region:        strings.TrimSpace(os.Getenv("S3_REGION")),
			Profile:       strings.TrimSpace(os.Getenv("S3_PROFILE")),
			Prefix:        strings.Trim(strings.TrimSpace(os.Getenv("S3_PREFIX")), "/"),
			PublicBaseURL: strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
			UsePathStyle:  strings.EqualFold(strings.TrimSpace(os.Getenv("S3_USE_PATH_STYLE")), "true"),
		},
		Text: TextConfig{
			APIKey: os.Getenv("COHERE_API_KEY"),
			Model:  getEnvOrDefault("COHERE_MODEL", "command-r-plus-08-2024"),
		},
		Image: ImageConfig{
			APIKey:   os.Getenv("IMAGE_API_KEY"),
			Endpoint: getEnvOrDefault("IMAGE_API_URL", "https://api.openai.com/v1/images/generations"),
			Model:    getEnvOrDefault("IMAGE_MODEL", "gpt-image-1"),
		},
		Search: SearchConfig{
			ScrapeURL:    getEnvOrDefault("NEWS_SCRAPE_URL", "https://search.naver.com/search.naver?where=news"),
			APIURL:       getEnvOrDefault("NEWS_API_URL", "https://openapi.naver.com/v1/search/news.json"),
			ClientID:     os.Getenv("NEWS_API_CLIENT_ID"),
			ClientSecret: os.Getenv("NEWS_API_CLIENT_SECRET"),
			AllowPattern: getEnvOrDefault("NEWS_API_ALLOW_PATTERN", `^n\.news\.naver\.com$`),
		},
		TagAPI: TagAPIConfig{
			URL:    os.Getenv("TAG_API_URL"),
			APIKey: os.Getenv("TAG_API_KEY"),
		},
		YouTube: YouTubeConfig{
			APIKey:             os.Getenv("YOUTUBE_API_KEY"),
			ServiceAccountFile: os.Getenv("YOUTUBE_SERVICE_ACCOUNT_FILE"),
		},
		Limits: map[string]LimitConfig{},
	}

	for _, p := range []string{ProviderNewsScrape, ProviderNewsAPI, ProviderText, ProviderImage, ProviderTagAPI, ProviderYouTube} {
		cfg.Limits[p] = loadLimit(p)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, &types.ValidationError{Field: "TZ_NAME", Message: err.Error()}
	}
	cfg.location = loc

	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSources reads the YAML source catalog. A missing file yields no sources.
func LoadSources(path string) ([]types.SourceDescriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(raw)
}

// ParseSources decodes a source catalog and resolves URL presets.
func ParseSources(raw []byte) ([]types.SourceDescriptor, error) {
	var catalog sourceCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	for i := range catalog.Sources {
		catalog.Sources[i].URL = ResolveFeedURL(catalog.Sources[i].URL)
	}
	return catalog.Sources, nil
}

// Validate checks required fields of the loaded configuration.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if s.ScopeID == "" {
			return &types.ValidationError{Field: field + ".scope", Message: "required"}
		}
		if _, dup := seen[s.ScopeID]; dup {
			return &types.ValidationError{Field: field + ".scope", Message: "duplicate scope " + s.ScopeID}
		}
		seen[s.ScopeID] = struct{}{}
		switch s.Strategy {
		case types.PdfListing, types.JsonFeed, types.HtmlListing, types.VideoChannel, types.RssFeed:
		default:
			return &types.ValidationError{Field: field + ".strategy", Message: fmt.Sprintf("unknown strategy %q", s.Strategy)}
		}
		if s.URL == "" && s.ChannelID == "" {
			return &types.ValidationError{Field: field + ".url", Message: "required"}
		}
	}
	return nil
}

// Location returns the timezone used for day-scoped quota flags.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	return time.UTC
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// ImageThreshold returns the image gate threshold for the current environment.
func (c *Config) ImageThreshold() int {
	if v := getEnvInt("IMAGE_THRESHOLD", 0); v > 0 {
		return v
	}
	if c.IsProduction() {
		return ImageThresholdProduction
	}
	return ImageThresholdDevelopment
}

// Source returns the descriptor for a scope.
func (c *Config) Source(scopeID string) (types.SourceDescriptor, bool) {
	for _, s := range c.Sources {
		if s.ScopeID == scopeID {
			return s, true
		}
	}
	return types.SourceDescriptor{}, false
}

func loadLimit(provider string) LimitConfig {
	key := strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
	return LimitConfig{
		Max:    getEnvInt("RATE_MAX_"+key, DefaultRateMax),
		Window: time.Duration(getEnvInt("RATE_WINDOW_SECONDS_"+key, int(DefaultRateWindow/time.Second))) * time.Second,
	}
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
