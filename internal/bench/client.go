package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/runtest/internal/domain/model"
)

// requestIDHeader carries the per-run correlation id.
const requestIDHeader = "X-Request-Id"

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 512

// runTestRequest is the body posted to /runtest.
type runTestRequest struct {
	Secret string      `json:"secret"`
	Tests  model.Items `json:"tests"`
	Budget float64     `json:"budget"`
}

// Client posts selection requests to one service.
type Client struct {
	client *http.Client
	url    string
	body   []byte
}

// NewClient prepares a client that sends the same request body on every call.
func NewClient(cfg *Config) (*Client, error) {
	body, err := json.Marshal(runTestRequest{
		Secret: cfg.Secret,
		Tests:  cfg.Items,
		Budget: cfg.Budget,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    strings.TrimRight(cfg.URL, "/") + "/runtest",
		body:   body,
	}, nil
}

// Sample is the timing of a single run in seconds.
type Sample struct {
	Server float64
	Client float64
}

// Do performs one request and returns its timing.
func (c *Client) Do(ctx context.Context) (Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(c.body))
	if err != nil {
		return Sample{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Sample{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Sample{}, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out model.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Sample{}, fmt.Errorf("failed to decode response: %w", err)
	}
	elapsed := time.Since(start)

	return Sample{
		Server: out.ServerEnd - out.ServerStart,
		Client: elapsed.Seconds(),
	}, nil
}
