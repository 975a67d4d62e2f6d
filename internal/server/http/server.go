// Package http exposes the pipeline over a huma HTTP API and serves the
// static frontend.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/cors"

	"github.com/ekisa-team/modma/internal/service"
)

// Config holds HTTP server settings.
type Config struct {
	Port            int
	MaxUploadBytes  int64
	BodyReadTimeout time.Duration
	FrontendDir     string
	Version         string
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	api        huma.API
}

// New wires the API operations, the frontend and the middleware chain.
func New(cfg Config, pipeline *service.Pipeline, models ModelStatus) *Server {
	mux := http.NewServeMux()

	api := humago.New(mux, huma.DefaultConfig("modma", cfg.Version))
	NewPipelineHandler(api, pipeline, cfg)
	NewModelsHandler(api, models)

	if cfg.FrontendDir != "" {
		if info, err := os.Stat(cfg.FrontendDir); err == nil && info.IsDir() {
			mux.Handle("/", newSPAHandler(os.DirFS(cfg.FrontendDir)))
		} else {
			slog.Warn("Frontend directory not found, static files disabled", "dir", cfg.FrontendDir)
		}
	}

	var handler http.Handler = mux
	handler = cors.AllowAll().Handler(handler)
	handler = loggingMiddleware(handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 30 * time.Second,
		},
		api: api,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// API returns the huma API.
func (s *Server) API() huma.API {
	return s.api
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
