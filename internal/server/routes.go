package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Blobs.
	mux.HandleFunc("POST /v1/blobs", s.instrument("put", s.handleCreateBlob))
	mux.HandleFunc("GET /v1/blobs/{id}", s.instrument("get", s.handleGetBlob))
	mux.HandleFunc("DELETE /v1/blobs/{id}", s.instrument("delete", s.handleDeleteBlob))
	mux.HandleFunc("GET /v1/blobs/{id}/info", s.instrument("info", s.handleBlobInfo))

	// Aggregate.
	mux.HandleFunc("GET /v1/stats", s.instrument("stats", s.handleStats))

	// Admin.
	mux.HandleFunc("POST /v1/admin/sweep", s.instrument("admin_sweep", s.handleAdminSweep))

	return mux
}
