package queue_management

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"battle/internal/models"
	"battle/internal/utils"
	"battle/internal/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsHandler upgrades the connection and feeds queue messages into the actor.
func (m *Matchmaker) WsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("matchmaker: upgrade error:", err)
		return
	}

	client := ws.NewClient(conn)
	defer func() {
		m.post(disconnectMsg{connectionID: client.ID()})
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
		case models.TypeJoinQueue:
			var req models.JoinQueueMessage
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			m.post(joinQueueMsg{sender: client, req: req})
		case models.TypeLeaveQueue:
			m.post(leaveQueueMsg{connectionID: client.ID()})
		}
	}
}

// CountHandler answers the lightweight queue-depth poll.
func (m *Matchmaker) CountHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	utils.WriteJSON(w, http.StatusOK, models.SearchingResp{Searching: m.WaitingCount()})
}
