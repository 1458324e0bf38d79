// Package frontend serves the REST API. Handlers translate HTTP requests
// into store and dispatcher calls and map the shared error taxonomy onto
// status codes; all pipeline work happens in background workers.
package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/tagpipe-io/tagpipe/internal/build"
	"github.com/tagpipe-io/tagpipe/internal/persistence"
	"github.com/tagpipe-io/tagpipe/internal/scripts"
)

// TagChangeNotifier receives file tag-set change events. Satisfied by
// *dispatch.Dispatcher.
type TagChangeNotifier interface {
	OnFileTagChange(ctx context.Context, fileID string)
}

// Server is the HTTP API server.
type Server struct {
	addr       string
	store      persistence.Store
	scripts    *scripts.Store
	dispatcher TagChangeNotifier
	uploadsDir string
	logger     *slog.Logger

	httpServer *http.Server
}

// Config configures a Server.
type Config struct {
	Addr       string
	Store      persistence.Store
	Scripts    *scripts.Store
	Dispatcher TagChangeNotifier
	UploadsDir string
	Logger     *slog.Logger
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       cfg.Addr,
		store:      cfg.Store,
		scripts:    cfg.Scripts,
		dispatcher: cfg.Dispatcher,
		uploadsDir: cfg.UploadsDir,
		logger:     logger,
	}
}

// Router builds the chi router with the standard middleware stack. CORS is
// wide open; the API is designed to sit behind a browser frontend.
func (s *Server) Router() http.Handler {
	requestLogger := httplog.NewLogger(build.Slug, httplog.Options{
		LogLevel: slog.LevelInfo,
		Concise:  true,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.handleListTags)
			r.Post("/", s.handleCreateTag)
			r.Get("/{id}", s.handleGetTag)
			r.Put("/{id}", s.handleUpdateTag)
			r.Delete("/{id}", s.handleDeleteTag)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.handleListFiles)
			r.Post("/", s.handleUploadFile)
			r.Get("/{id}", s.handleGetFile)
			r.Delete("/{id}", s.handleDeleteFile)
			r.Get("/{id}/preview", s.handlePreviewFile)
			r.Post("/{id}/tags", s.handleAddFileTags)
			r.Delete("/{id}/tags/{tagID}", s.handleRemoveFileTag)
		})

		r.Route("/functions", func(r chi.Router) {
			r.Get("/", s.handleListFunctions)
			r.Post("/", s.handleCreateFunction)
			r.Get("/{id}", s.handleGetFunction)
			r.Put("/{id}", s.handleUpdateFunction)
			r.Delete("/{id}", s.handleDeleteFunction)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Get("/{id}", s.handleGetJob)
		})
	})

	return r
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.logger.Info("server started", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
