package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Delivery headers understood by the delay queue.
const (
	delayHeader       = "Delay-Seconds"
	contentTypeHeader = "Content-Type"
)

const defaultQueueTimeout = 10 * time.Second

// QueueClient schedules jobs through an external delayed-delivery queue.
// The queue POSTs the body back to the callback URL after the delay,
// redelivering on failure, and signs each callback with a JWT the Verifier
// checks.
type QueueClient struct {
	queueURL    string
	callbackURL string
	token       string
	httpClient  *http.Client
}

// QueueConfig holds delay queue configuration.
type QueueConfig struct {
	URL         string
	CallbackURL string
	Token       string
	Timeout     time.Duration
}

// NewQueueClient creates a queue-backed scheduler.
func NewQueueClient(cfg QueueConfig) *QueueClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultQueueTimeout
	}
	return &QueueClient{
		queueURL:    cfg.URL,
		callbackURL: cfg.CallbackURL,
		token:       cfg.Token,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Schedule enqueues the body for delayed delivery to the callback URL.
// A zero delay requests immediate delivery.
func (c *QueueClient) Schedule(ctx context.Context, body []byte, delay time.Duration) error {
	endpoint := fmt.Sprintf("%s/publish/%s", c.queueURL, c.callbackURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create queue request: %w", err)
	}
	req.Header.Set(contentTypeHeader, "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if delay > 0 {
		req.Header.Set(delayHeader, strconv.Itoa(int(delay.Seconds())))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish to queue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("queue publish failed with status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
