package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"monrelay/internal/auth"
	"monrelay/internal/config"
	"monrelay/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Viewer upgrades a browser connection onto the relay's frontend pool.
// ?subscribe=<hostKey> pre-subscribes before the read loop starts, and
// ?token= is validated when a JWT secret is configured.
func Viewer(rl *relay.Relay, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		// =======================
		// JWT FROM QUERY
		// =======================
		if cfg.JWT.Secret != "" {
			token := r.URL.Query().Get("token")
			if token == "" {
				http.Error(w, "token required", http.StatusUnauthorized)
				return
			}
			if _, err := auth.ParseToken(token, cfg.JWT.Secret); err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
		}

		// =======================
		// WS UPGRADE
		// =======================
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		sess := rl.CreateViewer(conn, r.RemoteAddr)
		defer rl.RemoveViewer(sess.ID)

		if key := r.URL.Query().Get("subscribe"); key != "" {
			rl.Subscribe(sess.ID, key)
		}

		// =======================
		// READ LOOP
		// =======================
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Println("viewer read error:", err)
				}
				return
			}
			rl.HandleViewerMessage(sess.ID, raw)
		}
	}
}

// Agent upgrades a monitoring-client connection onto the agent pool.
// Identity comes from the first snapshot payload, not from the request.
func Agent(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		sess := rl.CreateAgent(conn, r.RemoteAddr)
		defer rl.RemoveAgent(sess.ID)

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Println("agent read error:", err)
				}
				return
			}
			rl.HandleAgentMessage(sess.ID, raw)
		}
	}
}
