package hub

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/lyzr/claims/common/validation"
)

// Server handles WebSocket upgrades
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a server. Events only carry public ledger state, so any
// origin may subscribe unless allowedOrigins is set.
func NewServer(hub *Hub, allowedOrigins []string) *Server {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return len(allowed) == 0 || allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// HandleWebSocket upgrades and registers a subscriber
// URL: /ws or /ws?claimId=42
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	topic := AllClaims
	if raw := r.URL.Query().Get("claimId"); raw != "" {
		id, err := validation.ParseClaimID(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		topic = strconv.FormatInt(id, 10)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.hub.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, topic)
	if !s.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	s.hub.log.Debug("new websocket connection", "topic", topic, "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}

// HandleStats reports connection counts
// GET /stats
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"connections": s.hub.ConnectionCount(),
		"topics":      s.hub.TopicCount(),
	})
}
