// Package api exposes the compliance and document endpoints over net/http.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/aggregate"
	"github.com/dharsanguruparan/SiteVault/internal/apperr"
	"github.com/dharsanguruparan/SiteVault/internal/attachment"
	"github.com/dharsanguruparan/SiteVault/internal/config"
	"github.com/dharsanguruparan/SiteVault/internal/registry"
	"github.com/dharsanguruparan/SiteVault/internal/server"
	"github.com/dharsanguruparan/SiteVault/internal/submission"
	"github.com/dharsanguruparan/SiteVault/internal/telemetry"
)

// Deps are the components the handlers call.
type Deps struct {
	Registry    *registry.Service
	Submissions *submission.Service
	Documents   *aggregate.Pipeline
	Attachments *attachment.Manager
	Metrics     *telemetry.Metrics
	// Files serves in-memory objects; nil when objects live in S3.
	Files *server.FileServer
}

// Server exposes HTTP endpoints for requirements, submissions, documents and
// attachments.
type Server struct {
	cfg    *config.Config
	deps   Deps
	log    *zap.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, deps Deps, log *zap.Logger) *Server {
	return &Server{cfg: cfg, deps: deps, log: log}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", zap.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /debug/counters", s.authed(s.handleCounters))

	mux.Handle("GET /requirements", s.authed(s.handleListRequirements))
	mux.Handle("POST /requirements", s.authed(s.handleCreateRequirement))
	mux.Handle("PATCH /requirements/{id}", s.authed(s.handleUpdateRequirement))
	mux.Handle("POST /requirements/{id}/archive", s.authed(s.handleArchiveRequirement))
	mux.Handle("PUT /requirements/{id}/roles", s.authed(s.handleSetRoles))
	mux.Handle("PUT /requirements/{id}/sites", s.authed(s.handleSetSites))

	mux.Handle("GET /submissions", s.authed(s.handleSubmissionStatus))
	mux.Handle("POST /submissions", s.authed(s.handleSubmit))
	mux.Handle("POST /submissions/{id}/review", s.authed(s.handleReview))
	mux.Handle("GET /submissions/{id}/file-url", s.authed(s.handleSubmissionFileURL))

	mux.Handle("GET /documents", s.authed(s.handleDocuments))

	mux.Handle("GET /parents/{parentId}/attachments", s.authed(s.handleListAttachments))
	mux.Handle("POST /parents/{parentId}/attachments", s.authed(s.handleAddAttachment))
	mux.Handle("PATCH /attachments/{id}", s.authed(s.handleUpdateAttachment))
	mux.Handle("DELETE /attachments/{id}", s.authed(s.handleDeleteAttachment))

	if s.deps.Files != nil {
		mux.Handle(s.deps.Files.Pattern(), s.deps.Files)
	}

	return corsMiddleware(s.loggingMiddleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	if !principal(r).Role.IsAdmin() {
		s.respondError(w, r, apperr.Forbidden("only administrators may read counters"))
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Metrics.Snapshot())
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	respondJSON(w, status, map[string]string{
		"error": apperr.PublicMessage(err),
		"code":  string(apperr.CodeOf(err)),
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,"+headerPrincipalID+","+headerRole+","+headerOrg+","+headerRestrictedOrg)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
