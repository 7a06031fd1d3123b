package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRetries = 3
	maxBodySize    = 1 << 20
)

// statusError is a non-2xx response
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d body=%s", e.Code, e.Body)
}

func (e *statusError) retriable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// restClient is the HTTP plumbing shared by the REST collaborators
type restClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retries    int
	backoff    time.Duration // First retry delay, doubled each attempt
	logger     *slog.Logger
}

func newRestClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *restClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &restClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		retries: defaultRetries,
		backoff: time.Second,
		logger:  logger,
	}
}

// getJSON fetches path into out with retry on network errors, 429 and 5xx.
// Exponential backoff: 1s, 2s.
func (c *restClient) getJSON(ctx context.Context, path string, out any) error {
	var lastErr error
	for i := 0; i < c.retries; i++ {
		if i > 0 {
			delay := c.backoff * time.Duration(1<<uint(i-1))
			c.logger.Info("Retrying request", slog.String("path", path), slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doGet(ctx, path, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if se, ok := err.(*statusError); ok && !se.retriable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Request attempt failed", slog.String("path", path), slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return lastErr
}

func (c *restClient) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return &statusError{Code: resp.StatusCode, Body: string(body)}
	}

	return json.Unmarshal(body, out)
}
