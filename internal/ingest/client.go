package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of an indexer response is read. A page
// beyond this limit is treated as the payload-too-large condition and ends
// ingestion with the partial history collected so far.
const maxResponseBytes = 2_000_000

// errPayloadTooLarge signals an oversized indexer response.
var errPayloadTooLarge = errors.New("response exceeds size limit")

// statusError is a non-2xx response from an indexer.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("indexer returned status %d: %s", e.Code, e.Body)
}

// isNotFound reports whether err is an HTTP 404 from the indexer.
func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// isRateLimited reports whether err is an HTTP 429 from the indexer.
func isRateLimited(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// indexerClient is the HTTP transport shared by the chain ingestors.
type indexerClient struct {
	httpClient *http.Client
}

func newIndexerClient(timeout time.Duration) *indexerClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &indexerClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// getJSON fetches url and decodes the body into out. Non-2xx statuses come
// back as *statusError; an oversized body comes back as errPayloadTooLarge.
func (c *indexerClient) getJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return errPayloadTooLarge
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return errPayloadTooLarge
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
