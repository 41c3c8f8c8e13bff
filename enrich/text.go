package enrich

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pcaview/config"
	"pcaview/types"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/option"
)

// TextGenerator completes a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// CohereText implements TextGenerator with the Cohere Chat API (v2).
// SDK: github.com/cohere-ai/cohere-go/v2
type CohereText struct {
	client *cohereclient.Client
	model  string
}

// NewCohereText builds a chat client. The HTTP client forces HTTP/1.1.
// Extra options are applied after the defaults.
func NewCohereText(apiKey, model string, opts ...option.RequestOption) *CohereText {
	if model == "" {
		model = "command-r-plus-08-2024"
	}
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(append([]option.RequestOption{
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	}, opts...)...)
	return &CohereText{client: client, model: model}
}

func (c *CohereText) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.V2.Chat(ctx, &cohere.V2ChatRequest{
		Model: c.model,
		Messages: cohere.ChatMessages{
			{
				Role: "user",
				User: &cohere.UserMessageV2{
					Content: &cohere.UserMessageV2Content{String: prompt},
				},
			},
		},
	})
	if err != nil {
		var tooMany *cohere.TooManyRequestsError
		if errors.As(err, &tooMany) {
			return "", &types.QuotaExceededError{Provider: config.ProviderText}
		}
		return "", fmt.Errorf("cohere chat error: %w", err)
	}
	if resp == nil || resp.Message == nil {
		return "", errors.New("cohere chat returned empty response")
	}

	var b strings.Builder
	for _, item := range resp.Message.Content {
		if item != nil && item.Text != nil {
			b.WriteString(item.Text.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
