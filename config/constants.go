package config

import "time"

// Enrichment constants
const (
	// MaxBodyLength is the longest body (in characters) sent for rewriting
	MaxBodyLength = 5000

	// ImageThresholdDevelopment lets every allowed image through in development
	ImageThresholdDevelopment = 100

	// ImageThresholdProduction halves image generation in production
	ImageThresholdProduction = 50

	// CommentThreshold is the percent chance of synthesizing comments
	CommentThreshold = 30

	// MinSyntheticComments and MaxSyntheticComments bound the comment count
	MinSyntheticComments = 1
	MaxSyntheticComments = 5
)

// Search constants
const (
	// MaxSearchSeeds caps seed titles per trend run
	MaxSearchSeeds = 10

	// ScrapeResultLimit keeps only the first results of page 1
	ScrapeResultLimit = 5

	// APIResultLimit is the number of results requested from the search API
	APIResultLimit = 10
)

// Job constants
const (
	// JobTimeout bounds one listener invocation
	JobTimeout = 300 * time.Second

	// MaxJobAttempts bounds retries of non-quota failures
	MaxJobAttempts = 3

	// RetryBackoff is the delay before the first retry; it doubles per attempt
	RetryBackoff = 15 * time.Second

	// DefaultWorkers is the in-process worker pool size
	DefaultWorkers = 4
)

// Fetch constants
const (
	// FetchTimeout is the per-request timeout for adapters and providers
	FetchTimeout = 20 * time.Second

	// UserAgent identifies the crawler to source sites
	UserAgent = "pcaview-ingest/1.0 (+https://pcaview.com/bot)"
)

// Rate limit defaults per provider
const (
	DefaultRateMax    = 20
	DefaultRateWindow = 60 * time.Second
)

// Provider names shared by limiters, listeners and the quota API
const (
	ProviderNewsScrape = "news-scrape"
	ProviderNewsAPI    = "news-api"
	ProviderText       = "text-ai"
	ProviderImage      = "image-ai"
	ProviderTagAPI     = "tag-api"
	ProviderYouTube    = "youtube"
)
