package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"giftwatch/internal/config"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	hub    *Hub
	cfg    config.APIServerConfig
	logger *slog.Logger
}

// NewHandlers creates the handler set over one hub.
func NewHandlers(hub *Hub, cfg config.APIServerConfig, logger *slog.Logger) *Handlers {
	h := &Handlers{
		hub:    hub,
		cfg:    cfg,
		logger: logger.With("component", "api-handlers"),
	}
	return h
}

func (h *Handlers) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), h.cfg, r.Host)
		},
	}
}

// isOriginAllowed gates WebSocket upgrades. With an allowlist configured
// only exact matches pass; without one, same-host and localhost origins
// pass. Non-browser clients send no Origin and always pass.
func isOriginAllowed(origin string, cfg config.APIServerConfig, reqHost string) bool {
	if origin == "" {
		return true
	}
	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			if origin == allowed {
				return true
			}
		}
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == reqHost {
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleRecent returns the last dispatched listings, newest first.
func (h *Handlers) HandleRecent(w http.ResponseWriter, r *http.Request) {
	events := h.hub.Recent()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"count":    len(events),
		"listings": events,
	}); err != nil {
		h.logger.Error("encode recent failed", "error", err)
	}
}

// HandleWebSocket upgrades the connection and replays the recent
// backlog so a fresh client does not start from a blank feed.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn)

	backlog := h.hub.Recent()
	for i := len(backlog) - 1; i >= 0; i-- {
		data, err := json.Marshal(backlog[i])
		if err != nil {
			continue
		}
		select {
		case client.send <- data:
		default:
			return
		}
	}
}
