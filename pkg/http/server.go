package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"shockscore-server/pkg/errors"
	"shockscore-server/pkg/metrics"
	"shockscore-server/pkg/session"
)

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port          int
	EnableMetrics bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Server exposes health, metrics, session status, and the live score
// feed.
type Server struct {
	logger    *logrus.Logger
	config    ServerConfig
	manager   *session.Manager
	hub       *ScoreHub
	server    *http.Server
	startedAt time.Time
}

// NewServer creates the HTTP server. The hub may be nil when the live
// feed is disabled.
func NewServer(logger *logrus.Logger, config ServerConfig, manager *session.Manager, hub *ScoreHub) *Server {
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		logger:    logger,
		config:    config,
		manager:   manager,
		hub:       hub,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	if config.EnableMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}
	if hub != nil {
		mux.Handle("/ws/scores", hub)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "HTTP server failed")
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"active_sessions": s.manager.ActiveCount(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_sessions": s.manager.ActiveCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
