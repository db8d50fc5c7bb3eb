package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestDecodeErrorReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"blob not found","code":"not_found","error_code":2001}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).BlobInfo(context.Background(), "x", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "not_found" || apiErr.ErrorCode != 2001 {
		t.Fatalf("unexpected api error: %#v", apiErr)
	}
	if apiErr.Error() != "not_found: blob not found" {
		t.Fatalf("unexpected message %q", apiErr.Error())
	}
}

func TestDecodeErrorWithoutJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Ping(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 api error, got %v", err)
	}
}

func TestClientSendsTokens(t *testing.T) {
	t.Setenv(apiTokenEnvKey, "api-secret")
	t.Setenv(adminTokenEnvKey, "admin-secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer api-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/v1/admin/sweep" && r.Header.Get("X-Admin-Token") != "admin-secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"expired":2,"expired_ids":["a","b"]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).AdminSweep(context.Background())
	if err != nil {
		t.Fatalf("admin sweep: %v", err)
	}
	if resp.Expired != 2 || len(resp.ExpiredIDs) != 2 {
		t.Fatalf("unexpected sweep response: %#v", resp)
	}
}

func TestPutBlobSendsRawBodyAndQuery(t *testing.T) {
	expires := time.UnixMilli(1_900_000_000_000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("unexpected body %q", body)
		}
		if r.Header.Get("Content-Type") != "application/octet-stream" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		q := r.URL.Query()
		if q.Get("expires_at") != "1900000000000" || q.Get("encrypt") != "true" {
			t.Errorf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc","content_hash":"h","encryption_key":"k","deduplicated":false}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).PutBlob(context.Background(), strings.NewReader("payload"), PutOptions{
		ExpiresAt: &expires,
		Encrypt:   true,
	})
	if err != nil {
		t.Fatalf("put blob: %v", err)
	}
	if resp.ID != "abc" || resp.EncryptionKey != "k" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestGetBlobStreamsBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(DecryptionKeyHeader) != "deadbeef" {
			t.Errorf("expected decryption key header, got %q", r.Header.Get(DecryptionKeyHeader))
		}
		w.Header().Set("ETag", `"hash123"`)
		w.Header().Set("Cache-Control", "public, max-age=60")
		_, _ = w.Write([]byte("content"))
	}))
	defer srv.Close()

	blob, err := NewClient(srv.URL).GetBlob(context.Background(), "abc", "deadbeef")
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	defer blob.Close()

	data, err := io.ReadAll(blob)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "content" {
		t.Fatalf("unexpected body %q", data)
	}
	if blob.ContentHash != "hash123" || blob.CacheControl != "public, max-age=60" {
		t.Fatalf("unexpected headers %#v", blob)
	}
}
