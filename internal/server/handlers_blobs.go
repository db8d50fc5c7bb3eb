package server

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blobd/internal/api"
	"blobd/internal/models"
)

func (s *Server) handleCreateBlob(w http.ResponseWriter, r *http.Request) {
	in, ok := s.ingestInputFromRequest(w, r)
	if !ok {
		return
	}

	result, err := s.service.Ingest(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Deduplicated {
		status = http.StatusOK
	}
	s.writeJSON(w, status, api.BlobCreateResponse{
		ID:            result.ID,
		ContentHash:   result.ContentHash,
		EncryptionKey: result.EncryptionKey,
		Deduplicated:  result.Deduplicated,
	})
}

// ingestInputFromRequest accepts either a JSON envelope with base64
// content, or the raw content as the body with options in the query.
func (s *Server) ingestInputFromRequest(w http.ResponseWriter, r *http.Request) (IngestInput, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req api.BlobCreateRequest
		if !s.decodeJSONReq(w, r, &req, s.maxJSONBody) {
			return IngestInput{}, false
		}
		in := IngestInput{SourceURL: strings.TrimSpace(req.SourceURL), Encrypt: req.Encrypt}
		if req.Content != nil {
			data, err := base64.StdEncoding.DecodeString(*req.Content)
			if err != nil {
				s.writeServiceError(w, r, badRequestCode(fmt.Errorf("content must be base64 encoded"), ErrCodeInvalidContent))
				return IngestInput{}, false
			}
			in.Content = bytes.NewReader(data)
		}
		if req.ExpiresAt != nil {
			t := time.UnixMilli(*req.ExpiresAt).UTC()
			in.ExpiresAt = &t
		}
		return in, true
	}

	expiresAt, err := queryEpochMillis(r, "expires_at")
	if err != nil {
		s.writeServiceError(w, r, err)
		return IngestInput{}, false
	}
	encrypt, err := queryBool(r, "encrypt")
	if err != nil {
		s.writeServiceError(w, r, err)
		return IngestInput{}, false
	}

	in := IngestInput{
		SourceURL: strings.TrimSpace(r.URL.Query().Get("source_url")),
		ExpiresAt: expiresAt,
		Encrypt:   encrypt,
	}
	if in.SourceURL == "" {
		in.Content = r.Body
	} else if r.ContentLength != 0 {
		// -1 is a chunked body of unknown length.
		s.writeServiceError(w, r, badRequestCode(fmt.Errorf("content and source_url are mutually exclusive"), ErrCodeConflictingSource))
		return IngestInput{}, false
	}
	return in, true
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	content, err := s.service.Open(r.Context(), id, decryptionKey(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	record := content.Record
	etag := ""
	if record.ContentHash != "" {
		etag = `"` + record.ContentHash + `"`
	}

	header := w.Header()
	visibility := "public"
	if record.Encrypted() {
		visibility = "private"
	}
	header.Set("Cache-Control", fmt.Sprintf("%s, max-age=%d", visibility, int64(content.CacheMaxAge/time.Second)))
	if etag != "" {
		header.Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	header.Set("Content-Type", "application/octet-stream")
	if record.PlainSizeBytes != nil {
		header.Set("Content-Length", strconv.FormatInt(*record.PlainSizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, content.Reader)
	if err != nil {
		// Headers are gone; the client sees a short body.
		s.log().Warn("stream blob", "id", id, "written", written, "error", err)
	}
}

func (s *Server) handleBlobInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	record, err := s.service.Inspect(r.Context(), id, decryptionKey(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, blobInfoResponse(record))
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	deleted, err := s.service.Delete(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.BlobDeleteResponse{ID: deleted})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := api.StatsResponse{
		ObjectCount:    stats.ObjectCount,
		TotalSizeBytes: stats.TotalSizeBytes,
	}
	if stats.MaxTotalBytes > 0 {
		max := stats.MaxTotalBytes
		resp.MaxTotalBytes = &max
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func decryptionKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(api.DecryptionKeyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("key"))
}

func blobInfoResponse(record models.Blob) api.BlobInfoResponse {
	return api.BlobInfoResponse{
		ID:             record.ID,
		ContentHash:    record.ContentHash,
		SizeBytes:      record.SizeBytes,
		PlainSizeBytes: record.PlainSizeBytes,
		Compression:    record.Compression,
		Encrypted:      record.Encrypted(),
		ExpiresAt:      millisPtr(record.ExpiresAt),
		LastAccessedAt: millisPtr(record.LastAccessedAt),
		CreatedAt:      record.CreatedAt.UnixMilli(),
	}
}
