package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type urlFetcher struct {
	client *http.Client
}

func newURLFetcher(client *http.Client, timeout time.Duration) *urlFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &urlFetcher{client: client}
}

// Fetch issues a GET and returns the body of a 2xx response. Transport
// failures and non-2xx statuses are upstream errors.
func (f *urlFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, badRequestCode(fmt.Errorf("invalid source_url: %w", err), ErrCodeInvalidSourceURL)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, upstreamFetchFailed(fmt.Errorf("fetch source: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, upstreamFetchFailed(fmt.Errorf("fetch source: unexpected status %d", resp.StatusCode))
	}
	return resp.Body, nil
}
