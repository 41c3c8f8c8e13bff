package enrich

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"pcaview/config"
	"pcaview/types"
)

// ImageGenerator returns either an inline base64 data URI or an external URL.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPImages implements ImageGenerator against an OpenAI-compatible images
// endpoint.
// Endpoint: POST https://api.openai.com/v1/images/generations
// Request: {"model": "...", "prompt": "...", "n": 1, "size": "1024x1024"}
// Response: {"data": [{"b64_json": "..."} | {"url": "..."}]}
type HTTPImages struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

func NewHTTPImages(apiKey, endpoint, model string, client *http.Client) *HTTPImages {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &HTTPImages{apiKey: apiKey, model: model, endpoint: endpoint, client: client}
}

func (o *HTTPImages) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"n":      1,
		"size":   "1024x1024",
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &types.QuotaExceededError{Provider: config.ProviderImage}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return "", fmt.Errorf("image generation error: status %d: %v", resp.StatusCode, body)
	}

	var parsed struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Data) == 0 {
		return "", errors.New("image generation returned no data")
	}
	if d := parsed.Data[0]; d.B64JSON != "" {
		return "data:image/png;base64," + d.B64JSON, nil
	} else if d.URL != "" {
		return d.URL, nil
	}
	return "", errors.New("image generation returned neither b64_json nor url")
}

const maxImageBytes = 20 << 20

// Image is decoded image bytes ready for upload.
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
}

// DecodeImage resolves a generator response: a data URI is decoded in place,
// anything else is downloaded.
func DecodeImage(ctx context.Context, client *http.Client, ref string) (*Image, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "data:") {
		return decodeDataURI(ref)
	}
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return nil, fmt.Errorf("unsupported image reference")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &types.FetchError{URL: ref, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &types.FetchError{URL: ref, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, &types.FetchError{URL: ref, Err: err}
	}
	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if !strings.HasPrefix(ct, "image/") {
		ct = http.DetectContentType(data)
	}
	return newImage(data, ct)
}

func decodeDataURI(uri string) (*Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data uri")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("data uri is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return newImage(data, strings.TrimSuffix(meta, ";base64"))
}

func newImage(data []byte, contentType string) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	ext := map[string]string{
		"image/png":  "png",
		"image/jpeg": "jpg",
		"image/webp": "webp",
		"image/gif":  "gif",
	}[contentType]
	if ext == "" {
		return nil, fmt.Errorf("unsupported image type %q", contentType)
	}
	return &Image{Data: data, ContentType: contentType, Ext: ext}, nil
}
