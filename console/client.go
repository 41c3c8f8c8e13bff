package console

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"pcaview/api"
	"pcaview/ingestion"
)

// Client is a thin HTTP client for the pcaview API
type Client struct {
	baseURL string
	client  *http.Client
	// runs are synchronous on the server and may take minutes
	runClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 5 * time.Second},
		runClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Scopes fetches configured scopes with their last run
func (c *Client) Scopes() ([]api.ScopeView, error) {
	var body struct {
		Scopes []api.ScopeView `json:"scopes"`
	}
	if err := c.getJSON("/api/scopes", &body); err != nil {
		return nil, err
	}
	return body.Scopes, nil
}

// Quotas fetches the quota flag of every provider
func (c *Client) Quotas() ([]api.QuotaView, error) {
	var body struct {
		Providers []api.QuotaView `json:"providers"`
	}
	if err := c.getJSON("/api/quota", &body); err != nil {
		return nil, err
	}
	return body.Providers, nil
}

// RunScope triggers a manual run and waits for its result
func (c *Client) RunScope(scopeID string) (*ingestion.Result, error) {
	resp, err := c.runClient.Post(c.baseURL+"/api/scopes/"+url.PathEscape(scopeID)+"/run", "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to run scope: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var res ingestion.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &res, nil
}

// ResetQuota clears today's quota flag for provider
func (c *Client) ResetQuota(provider string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/api/quota/"+url.PathEscape(provider), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reset quota: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	return nil
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func serverError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
}
