package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HTTPFetcher implements Fetcher with retrying HTTP GETs. Transient
// failures (5xx, connection resets) are retried with backoff; 4xx responses
// are returned to the caller as-is so source validation can report them.
type HTTPFetcher struct {
	client      *retryablehttp.Client
	maxBodySize int64
}

// NewHTTPFetcher builds a fetcher with the given per-request timeout,
// retry count and response size cap.
func NewHTTPFetcher(timeout time.Duration, maxRetries int, maxBodySize int64) *HTTPFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	return &HTTPFetcher{client: client, maxBodySize: maxBodySize}
}

// Fetch performs a GET and returns the status code and body. Bodies larger
// than the configured cap are rejected rather than truncated.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*FetchResponse, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("closing fetch response body", "url", url, "error", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, f.maxBodySize)
	}

	return &FetchResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
