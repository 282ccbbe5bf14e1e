package models

import (
	"encoding/json"
	"time"
)

// PlayerInfo is the public identity carried through matchmaking and battles.
type PlayerInfo struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	BattleElo  float64 `json:"battleElo"`
	Country    *string `json:"country,omitempty"`
}

// QueueEntry is one queued player, owned exclusively by the matchmaker while
// queued. Keyed by player id: re-joining replaces the prior entry.
type QueueEntry struct {
	ConnectionID string
	Info         PlayerInfo
	JoinedAt     time.Time
}

// --- Client -> server messages ---

// Message type tags, matched exhaustively per channel.
const (
	TypeJoin       = "join"
	TypeAddSample  = "add_sample"
	TypeJoinQueue  = "join_queue"
	TypeLeaveQueue = "leave_queue"
)

// Envelope carries the type tag; the body is decoded in a second stage.
type Envelope struct {
	Type string `json:"type"`
}

// JoinMessage enters a battle room (or reconnects to one).
type JoinMessage struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	BattleElo  float64 `json:"battleElo"`
	Country    *string `json:"country,omitempty"`
}

// AddSampleMessage submits one guess during play.
type AddSampleMessage struct {
	X float64 `json:"x"`
}

// JoinQueueMessage enters the matchmaking queue.
type JoinQueueMessage struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	BattleElo  float64 `json:"battleElo"`
	Country    *string `json:"country,omitempty"`
}

// DecodeEnvelope extracts the message type tag without consuming the body.
func DecodeEnvelope(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

// --- Server -> client messages (battle room) ---

type WaitingMessage struct {
	Type string `json:"type"` // "waiting"
}

type CountdownMessage struct {
	Type    string `json:"type"` // "countdown"
	Seconds int    `json:"seconds"`
}

type StartMessage struct {
	Type             string  `json:"type"` // "start"
	Seed             int64   `json:"seed"`
	TargetDifficulty float64 `json:"targetDifficulty"`
	OpponentName     string  `json:"opponentName"`
	OpponentElo      float64 `json:"opponentElo"`
	OpponentCountry  *string `json:"opponentCountry,omitempty"`
	DurationMs       int64   `json:"durationMs"`
}

type OpponentKdeMessage struct {
	Type     string    `json:"type"` // "opponent_kde"
	Kde      []float64 `json:"kde"`
	MatchPct int       `json:"matchPct"`
}

type JackpotMessage struct {
	Type           string `json:"type"` // "jackpot"
	WinnerID       string `json:"winnerId"`
	WinnerName     string `json:"winnerName"`
	WinnerScore    int    `json:"winnerScore"`
	WinnerMatchPct int    `json:"winnerMatchPct"`
}

type BattleEndMessage struct {
	Type            string    `json:"type"` // "battle_end"
	WinnerID        string    `json:"winnerId"`
	WinnerName      string    `json:"winnerName"`
	WinnerScore     int       `json:"winnerScore"`
	WinnerMatchPct  int       `json:"winnerMatchPct"`
	LoserScore      int       `json:"loserScore"`
	LoserMatchPct   int       `json:"loserMatchPct"`
	YourEloDelta    int       `json:"yourEloDelta"`
	ResultToken     string    `json:"resultToken,omitempty"`
	OpponentSamples []float64 `json:"opponentSamples"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// --- Server -> client messages (matchmaker) ---

type QueueStatusMessage struct {
	Type         string `json:"type"` // "queue_status"
	Position     int    `json:"position"`
	WaitingCount int    `json:"waitingCount"`
}

type MatchFoundMessage struct {
	Type             string  `json:"type"` // "match_found"
	BattleID         string  `json:"battleId"`
	Seed             int64   `json:"seed"`
	TargetDifficulty float64 `json:"targetDifficulty"`
	OpponentName     string  `json:"opponentName"`
	OpponentElo      float64 `json:"opponentElo"`
	OpponentCountry  *string `json:"opponentCountry,omitempty"`
}

// --- HTTP payloads ---

type Resp struct {
	OK   bool        `json:"ok"`
	Info interface{} `json:"info"`
}

// SearchingResp answers the lightweight queue-depth poll.
type SearchingResp struct {
	Searching int `json:"searching"`
}

// ReportReq carries a signed result token to the settlement endpoint.
type ReportReq struct {
	Token string `json:"token"`
}

// ReportResp acknowledges a settled result.
type ReportResp struct {
	OK        bool    `json:"ok"`
	NewRating float64 `json:"newRating"`
}

// BattleSummary is the settled outcome published for downstream consumers.
type BattleSummary struct {
	BattleID       string    `json:"battleId"`
	WinnerID       string    `json:"winnerId"`
	LoserID        string    `json:"loserId"`
	WinnerScore    int       `json:"winnerScore"`
	LoserScore     int       `json:"loserScore"`
	WinnerMatchPct int       `json:"winnerMatchPct"`
	LoserMatchPct  int       `json:"loserMatchPct"`
	WinnerDelta    int       `json:"winnerDelta"`
	LoserDelta     int       `json:"loserDelta"`
	Reason         string    `json:"reason"` // "timeout", "jackpot", "disconnect"
	EndedAt        time.Time `json:"endedAt"`
}
