package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	wsAdapter "github.com/lorrc/ticket-workflow/internal/adapters/primary/websocket"
	"github.com/lorrc/ticket-workflow/internal/auth"
	"github.com/lorrc/ticket-workflow/internal/config"
	"github.com/lorrc/ticket-workflow/internal/infrastructure/logging"
)

// WebSocketHandler upgrades authenticated requests to live ticket feeds.
type WebSocketHandler struct {
	hub      *wsAdapter.Hub
	tm       *auth.TokenManager
	upgrader websocket.Upgrader
	logger   *slog.Logger

	pingInterval time.Duration
	pongWait     time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler. Outside development,
// browser origins must match WS_ALLOWED_ORIGINS.
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	tm *auth.TokenManager,
	cfg *config.Config,
	logger *slog.Logger,
) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:          hub,
		tm:           tm,
		logger:       logger.With("handler", "websocket"),
		pingInterval: cfg.WebSocket.PingInterval,
		pongWait:     cfg.WebSocket.PongWait,
	}

	allowed := cfg.WebSocket.AllowedOrigins
	anyOrigin := cfg.IsDevelopment()
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if anyOrigin || origin == "" || originAllowed(allowed, origin) {
				return true
			}
			logging.LoggerFromContext(r.Context(), h.logger).Warn("websocket origin rejected",
				"origin", origin, "remote_addr", r.RemoteAddr)
			return false
		},
	}
	return h
}

// originAllowed matches a browser Origin against the configured entries.
// An entry is either a full origin ("https://desk.example.com"), a bare host
// ("desk.example.com") or a wildcard host ("*.example.com", which also
// matches the apex).
func originAllowed(allowed []string, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	full := strings.ToLower(u.Scheme + "://" + u.Host)

	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(entry), "/"))
		switch {
		case entry == "*":
			return true
		case strings.Contains(entry, "://"):
			if entry == full {
				return true
			}
		case strings.HasPrefix(entry, "*."):
			if host == entry[2:] || strings.HasSuffix(host, entry[1:]) {
				return true
			}
		case host == entry:
			return true
		}
	}
	return false
}

// bearerToken reads the token from the query string, which browsers must use
// for websockets, or from an Authorization header sent by other clients.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// ServeHTTP handles GET /ws.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.LoggerFromContext(r.Context(), h.logger).With("remote_addr", r.RemoteAddr)

	token := bearerToken(r)
	if token == "" {
		logger.Warn("websocket rejected: missing token")
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}
	claims, err := h.tm.ValidateToken(token)
	if err != nil {
		logger.Warn("websocket rejected: invalid token", "error", err)
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		logger.Warn("websocket upgrade failed", "user_id", claims.UserID, "error", err)
		return
	}
	logger.Info("websocket connected", "user_id", claims.UserID, "role", claims.Role)

	client := wsAdapter.NewClient(h.hub, conn, claims.Actor(), h.logger)
	client.SetKeepalive(h.pingInterval, h.pongWait)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
