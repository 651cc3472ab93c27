package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/app"
)

// Server manages the HTTP server and routes
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		app: application,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.Addr(),
		Handler:     s.withConditionalMiddleware(s.router),
		ReadTimeout: 15 * time.Second,
		// Uploads are analyzed synchronously by the helper, which can take a while
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Addr returns host:port from the server config
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.app.Config.Server.Host, s.app.Config.Server.Port)
}

// URL returns the address the web UI is reachable at
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Handler returns the routed handler with middleware, for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("address", s.Addr()).
		Msg("HTTP server starting")

	s.app.Logger.Info().
		Str("url", s.URL()).
		Msg("Web UI available")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
