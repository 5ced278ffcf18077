// Package backend calls the upstream LLM-backed insights API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/adlens-ai/adlens/pkg/models"
)

const askPath = "/api/v1/insights/ask"

// Client asks questions against an ordered chain of insights backends,
// falling through to the next on transport errors and 5xx responses.
type Client struct {
	backends []config.BackendConfig
	http     *http.Client
}

// New creates a Client for the configured backends.
func New(backends []config.BackendConfig) *Client {
	return &Client{
		backends: backends,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// isRetryable returns true if the error or status code warrants trying
// the next backend. 4xx responses are the request's fault and fail
// immediately.
func isRetryable(err error, statusCode int) bool {
	if statusCode >= 400 && statusCode < 500 {
		return false
	}
	return err != nil || statusCode >= 500
}

// Ask sends the question to the first backend that answers.
func (c *Client) Ask(ctx context.Context, scope, question string) (*models.Answer, error) {
	if len(c.backends) == 0 {
		return nil, fmt.Errorf("no insights backends configured")
	}

	body, err := json.Marshal(models.AskRequest{WorkspaceID: scope, Question: question})
	if err != nil {
		return nil, fmt.Errorf("encode ask request: %w", err)
	}

	var lastErr error
	for _, b := range c.backends {
		answer, status, err := c.ask(ctx, b, body)
		if isRetryable(err, status) {
			if err == nil {
				err = fmt.Errorf("backend %s returned %d", b.Name, status)
			}
			log.Printf("backend %s failed: %v, trying next", b.Name, err)
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		return answer, nil
	}

	return nil, fmt.Errorf("all insights backends failed: %w", lastErr)
}

func (c *Client) ask(ctx context.Context, b config.BackendConfig, body []byte) (*models.Answer, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL+askPath, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("backend %s: status %d: %s", b.Name, resp.StatusCode, truncate(respBody, 256))
	}

	var answer models.Answer
	if err := json.Unmarshal(respBody, &answer); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode answer: %w", err)
	}
	return &answer, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
