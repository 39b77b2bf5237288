package handlers

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/verisend/server/internal/config"
	"github.com/verisend/server/internal/ws"
)

// WSHandler upgrades GET /api/v1/ws and subscribes the connection to the
// verification event stream.
type WSHandler struct {
	Hub    *ws.Hub
	Logger zerolog.Logger
	cors   config.CORSConfig
}

func NewWSHandler(hub *ws.Hub, cors config.CORSConfig, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		Hub:    hub,
		Logger: logger.With().Str("component", "ws_handler").Logger(),
		cors:   cors,
	}
}

func (h *WSHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Hub == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	upgrader := ws.Upgrader(h.checkOrigin)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		h.Logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	ws.Serve(h.Hub, conn, h.Logger)
}

// checkOrigin applies the CORS origin allow-list to the upgrade handshake.
// Requests without an Origin header (non-browser clients) are accepted.
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.cors.AllowAllOrigins {
		return true
	}
	origin = strings.ToLower(strings.TrimSpace(origin))
	for _, allowed := range h.cors.AllowedOrigins {
		if strings.ToLower(strings.TrimSpace(allowed)) == origin {
			return true
		}
	}
	return false
}
