package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams that user's
// events until the connection closes. Cross-origin upgrades are refused
// unless the origin matches one of originPatterns.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == uuid.Nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("accept", "error", err)
			return
		}

		logger.Debug("client connected", "user_id", userID)
		client := NewClient(hub, conn, userID)
		client.Run(r.Context())
		logger.Debug("client disconnected", "user_id", userID)
	}
}
