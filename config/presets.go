package config

// FeedPresets maps friendly names to source URLs
var FeedPresets = map[string]string{
	"google-trends-kr": "https://trends.google.co.kr/trending/rss?geo=KR",
	"google-trends-us": "https://trends.google.com/trending/rss?geo=US",
	"yna-latest":       "https://www.yna.co.kr/rss/news.xml",
}

// ResolveFeedURL resolves a feed identifier to a URL
// If the input is a preset name, returns the corresponding URL
// Otherwise, returns the input as-is (assuming it's a direct URL)
func ResolveFeedURL(feedInput string) string {
	if url, exists := FeedPresets[feedInput]; exists {
		return url
	}
	return feedInput
}
