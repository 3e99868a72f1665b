package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorebook/internal/auth"
)

// HandleWebSocket upgrades an identified request and subscribes it to the
// caller's family.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		familyID := auth.FamilyID(r.Context())
		if familyID == 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // kiosks on the home LAN connect from arbitrary origins
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		logger.Debug("websocket connected", "family_id", familyID, "user_id", auth.UserID(r.Context()))
		NewClient(hub, conn, familyID).Run(r.Context())
		logger.Debug("websocket disconnected", "family_id", familyID, "open_clients", hub.ClientCount())
	}
}
