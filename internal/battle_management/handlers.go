package battle_management

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"battle/internal/models"
	"battle/internal/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsHandler upgrades the connection for a battle room and pumps inbound
// messages into the room actor. One connection per room per player.
func (g *Registry) WsHandler(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleId")
	if battleID == "" {
		http.Error(w, "battleId required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("battle: upgrade error:", err)
		return
	}

	room := g.GetOrCreate(battleID)
	client := ws.NewClient(conn)
	defer func() {
		room.post(closeMsg{connectionID: client.ID()})
		client.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msgType, err := models.DecodeEnvelope(data)
		if err != nil {
			continue // malformed messages are silently ignored
		}

		switch msgType {
		case models.TypeJoin:
			var req models.JoinMessage
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			room.post(joinMsg{sender: client, req: req})
		case models.TypeAddSample:
			var req models.AddSampleMessage
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			room.post(sampleMsg{connectionID: client.ID(), x: req.X})
		}
	}
}
