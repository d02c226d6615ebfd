// Package server provides HTTP server initialization and management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dnastack/ddap-admin/internal/application/container"
	"github.com/dnastack/ddap-admin/internal/presentation/http/routes"
	"github.com/dnastack/ddap-admin/pkg/config"
)

// Server wraps the HTTP server with configuration and dependency injection
type Server struct {
	httpServer *http.Server
	container  *container.Container
}

// New creates a new HTTP server instance with dependency injection
func New(port string, container *container.Container) *Server {
	return NewWithHandler(port, routes.SetupRoutes(container), container)
}

// NewWithHandler serves handler with the configured timeouts.
func NewWithHandler(port string, handler http.Handler, container *container.Container) *Server {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		container:  container,
	}
}

// Addr is the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if s.container != nil {
		s.container.Logger.Startup().Info("Starting HTTP server", "addr", s.httpServer.Addr)
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.container != nil {
		s.container.Logger.Shutdown().Info("Shutting down HTTP server", "addr", s.httpServer.Addr)
	}
	return s.httpServer.Shutdown(ctx)
}
