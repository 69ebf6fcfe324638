// Package api exposes sessions and the companion PDF tools over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/local/partkit/internal/combine"
	"github.com/local/partkit/internal/export"
	"github.com/local/partkit/internal/filetype"
	"github.com/local/partkit/internal/imagerender"
	"github.com/local/partkit/internal/limiter"
	"github.com/local/partkit/internal/metrics"
	"github.com/local/partkit/internal/pdfdoc"
	"github.com/local/partkit/internal/session"
	"github.com/local/partkit/internal/statuscheck"
)

// Engine is the PDF toolkit used by the companion tools.
type Engine interface {
	combine.Engine
	Open(name string, data []byte) (*pdfdoc.Document, error)
}

// Thumbnailer renders page previews.
type Thumbnailer interface {
	RenderPage(doc *pdfdoc.Document, page int) (*imagerender.Thumbnail, error)
}

// Fetcher loads a source document by reference (path, URL, s3://).
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, []byte, error)
}

// StatusChecker reports dependency readiness.
type StatusChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Dependencies wires the server. Fetcher, Thumbs, Status and Limiter are
// optional.
type Dependencies struct {
	Sessions       *session.Manager
	Engine         Engine
	Detector       *filetype.Detector
	Fetcher        Fetcher
	Thumbs         Thumbnailer
	Status         StatusChecker
	Sinks          map[string]export.Sink
	Limiter        *limiter.Limiter
	APIKey         string
	MaxUploadBytes int64
}

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	deps   Dependencies
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Dependencies) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 64 << 20
	}
	s := &Server{deps: deps}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.deps.APIKey != "" {
			r.Use(AuthMiddleware(s.deps.APIKey))
		}

		r.With(s.admit("load")).Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/base-name", s.handleSetBaseName)
			r.Put("/archive-name", s.handleSetArchiveName)
			r.Post("/retry", s.handleRetry)
			r.Get("/archive", s.handleArchive)
			r.Post("/export", s.handleExport)

			r.Route("/segments/{segmentID}", func(r chi.Router) {
				r.Post("/rename", s.handleRename)
				r.Post("/merge-up", s.handleMergeUp)
				r.Post("/merge-down", s.handleMergeDown)
				r.Post("/split", s.handleSplit)
				r.Get("/download", s.handleDownload)
				r.Get("/thumbnail", s.handleThumbnail)
			})
		})

		r.Get("/pairings", s.handlePairings)
		r.With(s.admit("combine")).Post("/combine", s.handleCombine)
		r.With(s.admit("assemble")).Post("/assemble", s.handleAssemble)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	sum := s.deps.Status.Summary(r.Context())
	code := http.StatusOK
	if !sum.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}
