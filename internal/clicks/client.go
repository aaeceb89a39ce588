// Package clicks is the HTTP client for the external click recorder
// service, which owns click records and link definitions.
package clicks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/leadlink/conversions/internal/domain"
)

// ErrNotFound is returned when the click or link does not exist.
var ErrNotFound = errors.New("not found")

const defaultTimeout = 10 * time.Second

// Resolver resolves click and link identifiers. The reconciliation engine
// depends on this interface, not on the HTTP client.
type Resolver interface {
	ResolveClick(ctx context.Context, clickID string) (*domain.ClickRecord, error)
	ResolveLink(ctx context.Context, linkID string) (*domain.Link, error)
}

// Client is the HTTP implementation of Resolver.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds click recorder client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a click recorder client.
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

// ResolveClick fetches the click record for a durable click identifier.
func (c *Client) ResolveClick(ctx context.Context, clickID string) (*domain.ClickRecord, error) {
	var record domain.ClickRecord
	endpoint := fmt.Sprintf("%s/api/v1/clicks/%s", c.baseURL, clickID)
	if err := c.getJSON(ctx, endpoint, &record); err != nil {
		return nil, fmt.Errorf("resolve click %s: %w", clickID, err)
	}
	return &record, nil
}

// ResolveLink fetches the link a thank-you redirect targets.
func (c *Client) ResolveLink(ctx context.Context, linkID string) (*domain.Link, error) {
	var link domain.Link
	endpoint := fmt.Sprintf("%s/api/v1/links/%s", c.baseURL, linkID)
	if err := c.getJSON(ctx, endpoint, &link); err != nil {
		return nil, fmt.Errorf("resolve link %s: %w", linkID, err)
	}
	return &link, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
