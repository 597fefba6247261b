// Package server provides the HTTP server for the ishara sign recognizer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/srujkamble02/ishara/internal/config"
	"github.com/srujkamble02/ishara/internal/gate"
	"github.com/srujkamble02/ishara/internal/server/api"
	"github.com/srujkamble02/ishara/internal/store"
)

// App is the running recognizer as seen by the server.
type App interface {
	api.Recognizer
	Session() string
	// Frames yields JPEG-encoded overlay frames.
	Frames() (<-chan []byte, func())
	Results() (<-chan gate.Result, func())
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	App       App

	// Store and Base enable /api/settings. OnSettings receives the effective
	// configuration after each change.
	Store      *store.Store
	Base       config.Config
	OnSettings func(config.Config)

	// Resolve, if set, runs on every effective configuration after the
	// stored overrides are applied.
	Resolve api.Resolver

	Logger *zap.SugaredLogger
}

// Server represents the HTTP server for the ishara application.
type Server struct {
	config Config
	logger *zap.SugaredLogger
	mux    *http.ServeMux
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		config: config,
		logger: logger,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.App != nil {
		rec := api.NewRecognitionHandler(s.config.App, s.logger)
		s.mux.HandleFunc("/api/status", rec.Status)
		s.mux.HandleFunc("/api/speak", rec.Speak)
		s.mux.HandleFunc("/api/overlay.png", rec.Overlay)

		s.mux.Handle("/api/stream", NewStreamHandler(s.config.App, s.logger))
		s.mux.Handle("/api/results", NewResultsHandler(s.config.App, s.logger))
	}

	if s.config.Store != nil {
		settings := api.NewSettingsHandler(s.config.Store, s.config.Base, s.config.OnSettings, s.logger).
			WithResolver(s.config.Resolve)
		s.mux.Handle("/api/settings", settings)
		s.mux.Handle("/api/settings/", settings)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.App != nil {
		response["session"] = s.config.App.Session()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infow("http server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for handlers until ctx expires.
// Long-lived streams end when their subscriptions close.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
