package settlement

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle/internal/elo"
	"battle/internal/models"
	"battle/internal/resulttoken"
	"battle/internal/utils"
)

var (
	tokenSecret = []byte("result-secret")
	jwtSecret   = []byte("identity-secret")
)

func newTestService(t *testing.T) (*Service, *elo.Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := elo.NewStore(rdb)
	return NewService(store, rdb, tokenSecret, jwtSecret), store, rdb
}

func signedResult(t *testing.T, playerID string, delta int) string {
	t.Helper()
	token, err := resulttoken.Sign(resulttoken.Payload{
		BattleID: "12345-5",
		PlayerID: playerID,
		Won:      delta > 0,
		EloDelta: delta,
		Ts:       time.Now().UnixMilli(),
	}, tokenSecret)
	require.NoError(t, err)
	return token
}

func reportRequest(t *testing.T, playerID, token string) *http.Request {
	t.Helper()
	body, err := json.Marshal(models.ReportReq{Token: token})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/battles/report", bytes.NewReader(body))
	if playerID != "" {
		identity, err := utils.GenerateIdentityToken(playerID, jwtSecret)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+identity)
	}
	return req
}

func TestReportAppliesDelta(t *testing.T) {
	svc, store, _ := newTestService(t)

	req := reportRequest(t, "p1", signedResult(t, "p1", 16))
	rr := httptest.NewRecorder()
	svc.ReportHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.ReportResp
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.OK)
	assert.Equal(t, elo.DefaultRating+16, resp.NewRating)

	info, err := store.GetRating("p1")
	require.NoError(t, err)
	assert.Equal(t, elo.DefaultRating+16, info.Rating)
	assert.Equal(t, 1, info.Battles)
}

func TestReportRequiresAuth(t *testing.T) {
	svc, store, _ := newTestService(t)

	req := reportRequest(t, "", signedResult(t, "p1", 16))
	rr := httptest.NewRecorder()
	svc.ReportHandler(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	info, err := store.GetRating("p1")
	require.NoError(t, err)
	assert.Equal(t, elo.DefaultRating, info.Rating)
}

func TestReportRejectsTamperedToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	token := signedResult(t, "p1", 16)
	last := "A"
	if strings.HasSuffix(token, "A") {
		last = "B"
	}
	tampered := token[:len(token)-1] + last

	rr := httptest.NewRecorder()
	svc.ReportHandler(rr, reportRequest(t, "p1", tampered))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestReportRejectsWrongCaller(t *testing.T) {
	svc, store, _ := newTestService(t)

	// p2 tries to redeem a token issued for p1.
	rr := httptest.NewRecorder()
	svc.ReportHandler(rr, reportRequest(t, "p2", signedResult(t, "p1", 16)))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	info, err := store.GetRating("p1")
	require.NoError(t, err)
	assert.Equal(t, elo.DefaultRating, info.Rating)
}

func TestReportRejectsExpiredToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	token, err := resulttoken.Sign(resulttoken.Payload{
		BattleID: "12345-5",
		PlayerID: "p1",
		Won:      true,
		EloDelta: 16,
		Ts:       time.Now().Add(-6 * time.Minute).UnixMilli(),
	}, tokenSecret)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	svc.ReportHandler(rr, reportRequest(t, "p1", token))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestReportRejectsBadJSON(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/battles/report", bytes.NewReader([]byte("{not json")))
	identity, err := utils.GenerateIdentityToken("p1", jwtSecret)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+identity)

	rr := httptest.NewRecorder()
	svc.ReportHandler(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPublishBattleResult(t *testing.T) {
	svc, _, rdb := newTestService(t)

	sub := rdb.Subscribe(svc.ctx, resultsChannel)
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(svc.ctx)
	require.NoError(t, err)

	summary := models.BattleSummary{
		BattleID:    "12345-5",
		WinnerID:    "p1",
		LoserID:     "p2",
		WinnerScore: 9000,
		LoserScore:  79,
		WinnerDelta: 16,
		LoserDelta:  -16,
		Reason:      "timeout",
		EndedAt:     time.Now(),
	}
	svc.PublishBattleResult(summary)

	select {
	case msg := <-sub.Channel():
		var got models.BattleSummary
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, summary.BattleID, got.BattleID)
		assert.Equal(t, summary.WinnerID, got.WinnerID)
		assert.Equal(t, summary.Reason, got.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("no battle result published")
	}
}
