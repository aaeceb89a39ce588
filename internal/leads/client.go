// Package leads is the HTTP client for the external lead/customer creation
// service. Creation is best-effort: a single attempt, no internal retries;
// the collaborator deduplicates on provider-native identifiers.
package leads

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/leadlink/conversions/internal/domain"
)

const defaultTimeout = 10 * time.Second

// CreateRequest carries a fully attributed conversion to the lead service.
type CreateRequest struct {
	ClickID     string      `json:"click_id"`
	LinkID      string      `json:"link_id"`
	WorkspaceID string      `json:"workspace_id"`
	Provider    string      `json:"provider"`
	Lead        domain.Lead `json:"lead"`
}

// Creator creates customer records from attributed conversions.
type Creator interface {
	Create(ctx context.Context, req CreateRequest) error
}

// Client is the HTTP implementation of Creator.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds lead creation client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a lead creation client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Create upserts the customer record and triggers downstream effects.
// Safe to call again with the same provider-native id; the collaborator
// deduplicates.
func (c *Client) Create(ctx context.Context, createReq CreateRequest) error {
	body, err := json.Marshal(createReq)
	if err != nil {
		return fmt.Errorf("marshal lead request: %w", err)
	}

	endpoint := c.baseURL + "/api/v1/leads"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("lead creation failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
