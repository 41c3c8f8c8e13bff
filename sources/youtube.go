package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pcaview/config"
	"pcaview/ratelimit"
	"pcaview/types"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubeAPI lists channel uploads through the YouTube Data API. Calls go
// through the youtube limiter, so a quota rejection stops further calls for
// the rest of the day.
type YouTubeAPI struct {
	service *youtube.Service
	limiter *ratelimit.Limiter
}

// NewYouTubeAPI authenticates with a service account file when one is given,
// otherwise with an API key. A nil limiter gets a private in-memory one.
func NewYouTubeAPI(ctx context.Context, apiKey, serviceAccountFile string, limiter *ratelimit.Limiter, opts ...option.ClientOption) (*YouTubeAPI, error) {
	switch {
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account file: %w", err)
		}
		cfg, err := google.JWTConfigFromJSON(data, youtube.YoutubeReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account: %w", err)
		}
		opts = append(opts, option.WithHTTPClient(cfg.Client(ctx)))
	case apiKey != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	default:
		return nil, &types.ValidationError{Field: "YOUTUBE_API_KEY", Message: "api key or service account required"}
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}
	if limiter == nil {
		limiter = ratelimit.New(config.ProviderYouTube, ratelimit.Options{})
	}
	return &YouTubeAPI{service: service, limiter: limiter}, nil
}

// LatestVideos returns the channel's newest videos, newest first.
func (y *YouTubeAPI) LatestVideos(ctx context.Context, channelID string, max int) ([]types.CanonicalItem, error) {
	var resp *youtube.SearchListResponse
	err := y.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = y.service.Search.List([]string{"snippet"}).
			ChannelId(channelID).
			Order("date").
			Type("video").
			MaxResults(int64(max)).
			Context(ctx).
			Do()
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && IsQuotaStatus(gerr.Code) {
				return &types.QuotaExceededError{Provider: config.ProviderYouTube}
			}
			return &types.FetchError{URL: "youtube.search.list", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	items := make([]types.CanonicalItem, 0, len(resp.Items))
	for _, r := range resp.Items {
		if r.Id == nil || r.Id.VideoId == "" || r.Snippet == nil {
			continue
		}
		item := types.CanonicalItem{
			ExternalID: r.Id.VideoId,
			Link:       watchURL + r.Id.VideoId,
			Title:      r.Snippet.Title,
			BodyHTML:   r.Snippet.Description,
			SourceType: types.VideoChannel,
		}
		if t, err := time.Parse(time.RFC3339, r.Snippet.PublishedAt); err == nil {
			item.PublishedAt = t
		}
		if th := r.Snippet.Thumbnails; th != nil {
			for _, d := range []*youtube.Thumbnail{th.Maxres, th.High, th.Medium, th.Default} {
				if d != nil && d.Url != "" {
					item.ThumbnailURL = d.Url
					break
				}
			}
		}
		items = append(items, item)
	}
	return items, nil
}
