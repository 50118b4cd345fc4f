package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"giftwatch/internal/config"
)

// Server runs the HTTP/WebSocket feed.
type Server struct {
	cfg      config.APIServerConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger

	cancel context.CancelFunc
}

// NewServer creates the feed server. The hub it exposes is the
// dispatcher's sink.
func NewServer(cfg config.APIServerConfig, logger *slog.Logger) *Server {
	hub := NewHub(cfg.RecentSize, logger)
	handlers := NewHandlers(hub, cfg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/recent", handlers.HandleRecent)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Hub returns the hub for wiring into the dispatcher.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the hub and listens. Blocks until Stop or a listen
// failure.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(ctx)

	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server and hub down.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
