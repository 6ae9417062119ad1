// Package server serves objects held by the in-memory object store so that
// URLs handed out by a single-process deployment resolve.
package server

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/SiteVault/internal/storage"
)

// Objects is the subset of the in-memory object store the file server reads.
type Objects interface {
	Download(ctx context.Context, path string) ([]byte, error)
	VerifySignedURL(q url.Values) bool
}

var _ Objects = (*storage.MemoryObjects)(nil)

// FileServer answers public object URLs and signed download URLs.
type FileServer struct {
	objects Objects
	prefix  string
	log     *zap.Logger
}

// NewFileServer serves objects below prefix, e.g. "/files".
func NewFileServer(objects Objects, prefix string, log *zap.Logger) *FileServer {
	return &FileServer{objects: objects, prefix: strings.TrimRight(prefix, "/"), log: log}
}

// Pattern is the ServeMux pattern the server should be mounted at.
func (s *FileServer) Pattern() string {
	return "GET " + s.prefix + "/"
}

func (s *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, s.prefix+"/")
	if rel == "download" {
		s.handleDownload(w, r)
		return
	}
	// Submission files are only reachable through signed URLs.
	if rel == "" || strings.HasPrefix(rel, "submissions/") {
		http.NotFound(w, r)
		return
	}
	s.serve(w, r, rel)
}

func (s *FileServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !s.objects.VerifySignedURL(q) {
		http.Error(w, "invalid or expired signature", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(q.Get("path"))+`"`)
	s.serve(w, r, q.Get("path"))
}

func (s *FileServer) serve(w http.ResponseWriter, r *http.Request, p string) {
	data, err := s.objects.Download(r.Context(), p)
	if errors.Is(err, storage.ErrObjectNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Warn("object download failed", zap.String("path", p), zap.Error(err))
		http.Error(w, "failed to read object", http.StatusInternalServerError)
		return
	}
	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
