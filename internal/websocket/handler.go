package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/larder/internal/auth"
)

// HandleWebSocket upgrades authenticated connections and runs them as Hub
// clients. Browsers cannot set headers on a websocket handshake, so the
// access token arrives in the token query parameter.
func HandleWebSocket(hub *Hub, tokens *auth.TokenManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("token")
		if raw == "" {
			raw, _ = auth.ExtractToken(r.Header.Get("Authorization"))
		}
		claims, err := tokens.Validate(raw, auth.PurposeAccess)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "invalid or expired token"})
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "user_id", claims.UserID, "error", err)
			return
		}

		client := NewClient(hub, conn, claims.UserID, claims.Role == "admin")
		client.Serve(r.Context())
	}
}
