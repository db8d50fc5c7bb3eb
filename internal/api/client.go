package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "BLOBD_HTTP_TIMEOUT"
	apiTokenEnvKey     = "BLOBD_API_TOKEN"
	adminTokenEnvKey   = "BLOBD_ADMIN_TOKEN"

	// DecryptionKeyHeader carries the per-object key on reads.
	DecryptionKeyHeader = "X-Decryption-Key"
)

// Client is a simple HTTP client for the blobd API.
type Client struct {
	baseURL string
	http    *http.Client
	// stream has no overall timeout; uploads and downloads are bounded
	// by the caller's context instead.
	stream     *http.Client
	authToken  string
	adminToken string
}

// PutOptions controls a raw-body upload.
type PutOptions struct {
	SourceURL string
	ExpiresAt *time.Time
	Encrypt   bool
}

// BlobReader is an open download. Close must be called.
type BlobReader struct {
	io.ReadCloser
	ContentHash   string
	ContentLength int64
	CacheControl  string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		stream:     &http.Client{},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// CreateBlob uploads using the JSON request form.
func (c *Client) CreateBlob(ctx context.Context, req BlobCreateRequest) (BlobCreateResponse, error) {
	var resp BlobCreateResponse
	err := c.do(ctx, http.MethodPost, "/v1/blobs", nil, req, &resp)
	return resp, err
}

// PutBlob streams body as the raw request payload. With a nil body and
// opts.SourceURL set, the server fetches the content itself.
func (c *Client) PutBlob(ctx context.Context, body io.Reader, opts PutOptions) (BlobCreateResponse, error) {
	var resp BlobCreateResponse
	query := url.Values{}
	if opts.SourceURL != "" {
		query.Set("source_url", opts.SourceURL)
	}
	if opts.ExpiresAt != nil {
		query.Set("expires_at", strconv.FormatInt(opts.ExpiresAt.UnixMilli(), 10))
	}
	if opts.Encrypt {
		query.Set("encrypt", "true")
	}

	endpoint := c.baseURL + "/v1/blobs"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	c.setAuthHeader(req)

	httpResp, err := c.stream.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

// GetBlob opens a download. key is only needed for encrypted objects.
func (c *Client) GetBlob(ctx context.Context, id, key string) (*BlobReader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/blobs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	if key != "" {
		req.Header.Set(DecryptionKeyHeader, key)
	}
	c.setAuthHeader(req)

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return &BlobReader{
		ReadCloser:    resp.Body,
		ContentHash:   strings.Trim(resp.Header.Get("ETag"), `"`),
		ContentLength: resp.ContentLength,
		CacheControl:  resp.Header.Get("Cache-Control"),
	}, nil
}

// BlobInfo returns metadata for one object.
func (c *Client) BlobInfo(ctx context.Context, id, key string) (BlobInfoResponse, error) {
	var resp BlobInfoResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/blobs/"+url.PathEscape(id)+"/info", nil)
	if err != nil {
		return resp, err
	}
	if key != "" {
		req.Header.Set(DecryptionKeyHeader, key)
	}
	err = c.send(req, &resp)
	return resp, err
}

// DeleteBlob removes one object.
func (c *Client) DeleteBlob(ctx context.Context, id string) (BlobDeleteResponse, error) {
	var resp BlobDeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/blobs/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// Stats returns aggregate usage.
func (c *Client) Stats(ctx context.Context) (StatsResponse, error) {
	var resp StatsResponse
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, nil, &resp)
	return resp, err
}

// AdminSweep runs one retention sweep on the server.
func (c *Client) AdminSweep(ctx context.Context) (SweepResponse, error) {
	var resp SweepResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/admin/sweep", nil)
	if err != nil {
		return resp, err
	}
	c.setAdminHeader(req)
	err = c.send(req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
