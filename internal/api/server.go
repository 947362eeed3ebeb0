// Package api exposes the audit pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/alevsk/driftwatch/internal/logger"
	"github.com/alevsk/driftwatch/internal/types"
)

// maxAuditBody bounds the manifest stream accepted by the audit endpoint.
const maxAuditBody = 16 << 20

// Auditor runs an audit against a rendered manifest stream.
type Auditor interface {
	AuditManifests(ctx context.Context, manifests []byte) (*types.Report, error)
}

// Server represents the API server
type Server struct {
	router  *mux.Router
	auditor Auditor
	timeout time.Duration
}

// NewServer creates a new API server instance
func NewServer(auditor Auditor, timeout time.Duration) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		auditor: auditor,
		timeout: timeout,
	}
	s.routes()
	return s
}

// routes sets up the API routes
func (s *Server) routes() {
	s.router.HandleFunc("/api/v1/health", s.healthCheck).Methods("GET")
	s.router.HandleFunc("/api/v1/audit", s.audit).Methods("POST")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}
	logger.Info().Str("addr", addr).Msg("starting server")
	return server.ListenAndServe()
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		logger.Error().Err(err).Msg("failed to encode health check response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
}

// audit runs the pipeline against the manifest stream in the request body
// and returns the report as JSON. Bodies over maxAuditBody are rejected
// rather than truncated; a partial stream would audit fine and lie.
func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAuditBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
		return
	}
	if len(body) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("empty request body"))
		return
	}

	rep, err := s.auditor.AuditManifests(r.Context(), body)
	if err != nil {
		logger.Error().Err(err).Msg("audit request failed")
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		logger.Error().Err(err).Msg("failed to encode report")
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	}); encodeErr != nil {
		logger.Error().Err(encodeErr).Msg("failed to encode error response")
	}
}
