package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/hearthside/pantrysync/internal/hub"
)

// Handler returns an HTTP handler that upgrades connections to WebSocket
// and runs them as hub subscribers.
func Handler(h *hub.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Allow connections from any origin (household LAN)
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(h, conn, logger)
		client.Run(r.Context())
	}
}
