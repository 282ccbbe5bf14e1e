package routers

import (
	"github.com/go-chi/chi/v5"

	"battle/internal/battle_management"
	"battle/internal/queue_management"
	"battle/internal/settlement"
)

// BattleRoutes mounts the matchmaker, battle room and settlement endpoints.
func BattleRoutes(r *chi.Mux, mm *queue_management.Matchmaker, rooms *battle_management.Registry, st *settlement.Service) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/queue/count", mm.CountHandler)
		r.HandleFunc("/queue/ws", mm.WsHandler)

		r.HandleFunc("/battles/{battleId}/ws", rooms.WsHandler)
		r.Post("/battles/report", st.ReportHandler)
	})
}
