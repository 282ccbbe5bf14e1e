// Package settlement is the receiving side of signed result tokens: it
// verifies signature, freshness and caller identity, then applies the rating
// update. Replay protection is bounded by the token freshness window.
package settlement

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"battle/internal/elo"
	"battle/internal/models"
	"battle/internal/resulttoken"
	"battle/internal/utils"
)

const resultsChannel = "battle_results"

// Service applies verified battle results to the rating store.
type Service struct {
	ctx       context.Context
	store     *elo.Store
	rdb       *redis.Client
	secret    []byte // result-token secret
	jwtSecret []byte // identity-token secret
}

func NewService(store *elo.Store, rdb *redis.Client, secret, jwtSecret []byte) *Service {
	return &Service{
		ctx:       context.Background(),
		store:     store,
		rdb:       rdb,
		secret:    secret,
		jwtSecret: jwtSecret,
	}
}

// ReportHandler accepts a signed result token from an authenticated caller
// and applies the embedded rating delta exactly once per delivery.
func (s *Service) ReportHandler(w http.ResponseWriter, r *http.Request) {
	playerID, err := utils.PlayerIDFromRequest(r, s.jwtSecret)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, models.Resp{OK: false, Info: "unauthenticated"})
		return
	}

	var req models.ReportReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "invalid json"})
		return
	}

	payload, err := resulttoken.Verify(req.Token, s.secret)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, models.Resp{OK: false, Info: "invalid result token"})
		return
	}

	// The token is only trusted on behalf of the player it names.
	if payload.PlayerID != playerID {
		utils.WriteJSON(w, http.StatusForbidden, models.Resp{OK: false, Info: "token player mismatch"})
		return
	}

	newRating, err := s.store.ApplyDelta(payload.PlayerID, payload.EloDelta)
	if err != nil {
		log.Printf("settlement: applying delta for %s: %v", payload.PlayerID, err)
		utils.WriteJSON(w, http.StatusInternalServerError, models.Resp{OK: false, Info: "failed to apply rating"})
		return
	}

	log.Printf("settlement: %s %+d -> %.0f (battle %s, won=%v)",
		payload.PlayerID, payload.EloDelta, newRating, payload.BattleID, payload.Won)

	utils.WriteJSON(w, http.StatusOK, models.ReportResp{OK: true, NewRating: newRating})
}

// PublishBattleResult pushes a settled summary onto the results channel for
// downstream consumers (leaderboards, history). Implements the room's
// ResultSink.
func (s *Service) PublishBattleResult(summary models.BattleSummary) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		log.Printf("settlement: marshal battle summary: %v", err)
		return
	}
	if err := s.rdb.Publish(s.ctx, resultsChannel, payload).Err(); err != nil {
		log.Printf("settlement: publish battle summary: %v", err)
	}
}
