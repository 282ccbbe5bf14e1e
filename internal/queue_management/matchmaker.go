// Package queue_management runs the global matchmaking queue as a
// single-goroutine actor: every join, leave, disconnect and matching pass is
// handled one at a time off the same inbox, so the queue map never needs a
// lock.
package queue_management

import (
	"log"
	"math"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"battle/internal/metrics"
	"battle/internal/models"
	"battle/internal/ws"
)

const (
	BaseEloRange      = 200
	EloRangeExpansion = 100 // per 10s waiting
	matchInterval     = 2 * time.Second
	inboxSize         = 256
)

// Tagged union of inbox messages. Matched exhaustively in run().
type mmMsg interface{ isMMMsg() }

type joinQueueMsg struct {
	sender ws.Sender
	req    models.JoinQueueMessage
}

type leaveQueueMsg struct{ connectionID string }

type disconnectMsg struct{ connectionID string }

type tickMsg struct{}

func (joinQueueMsg) isMMMsg()  {}
func (leaveQueueMsg) isMMMsg() {}
func (disconnectMsg) isMMMsg() {}
func (tickMsg) isMMMsg()       {}

// Matchmaker pairs waiting players by ELO proximity, widening the tolerance
// window the longer a player waits.
type Matchmaker struct {
	inbox   chan mmMsg
	queue   map[string]*models.QueueEntry // keyed by player id
	senders map[string]ws.Sender          // keyed by connection id

	ticker *time.Ticker // nil while fewer than 2 queued
	tickC  <-chan time.Time

	depth atomic.Int64

	// Injectable for tests.
	now     func() time.Time
	newSeed func() int64
}

func NewMatchmaker() *Matchmaker {
	m := &Matchmaker{
		inbox:   make(chan mmMsg, inboxSize),
		queue:   make(map[string]*models.QueueEntry),
		senders: make(map[string]ws.Sender),
		now:     time.Now,
		newSeed: func() int64 { return time.Now().UnixMilli() },
	}
	return m
}

// Start launches the actor goroutine.
func (m *Matchmaker) Start() {
	go m.run()
}

// WaitingCount reports the current queue depth for the polling endpoint.
func (m *Matchmaker) WaitingCount() int {
	return int(m.depth.Load())
}

func (m *Matchmaker) post(msg mmMsg) {
	select {
	case m.inbox <- msg:
	default:
		log.Printf("matchmaker: inbox full, dropping %T", msg)
	}
}

func (m *Matchmaker) run() {
	for {
		select {
		case msg := <-m.inbox:
			switch v := msg.(type) {
			case joinQueueMsg:
				m.handleJoinQueue(v.sender, v.req)
			case leaveQueueMsg:
				m.removeByConnection(v.connectionID)
			case disconnectMsg:
				m.removeByConnection(v.connectionID)
			case tickMsg:
				m.tryMatch()
			}
		case <-m.tickC:
			m.tryMatch()
		}
	}
}

func (m *Matchmaker) handleJoinQueue(sender ws.Sender, req models.JoinQueueMessage) {
	if req.PlayerID == "" {
		return
	}

	// Re-joining replaces the prior entry, including a stale connection.
	if prior, ok := m.queue[req.PlayerID]; ok {
		delete(m.senders, prior.ConnectionID)
	}

	m.queue[req.PlayerID] = &models.QueueEntry{
		ConnectionID: sender.ID(),
		Info: models.PlayerInfo{
			PlayerID:   req.PlayerID,
			PlayerName: req.PlayerName,
			BattleElo:  req.BattleElo,
			Country:    req.Country,
		},
		JoinedAt: m.now(),
	}
	m.senders[sender.ID()] = sender
	m.syncDepth()

	sender.Send(models.QueueStatusMessage{
		Type:         "queue_status",
		Position:     len(m.queue),
		WaitingCount: len(m.queue),
	})

	log.Printf("matchmaker: player %s queued (elo %.0f, waiting %d)",
		req.PlayerID, req.BattleElo, len(m.queue))

	m.tryMatch()
	m.updateTicker()
}

func (m *Matchmaker) removeByConnection(connectionID string) {
	for id, entry := range m.queue {
		if entry.ConnectionID == connectionID {
			delete(m.queue, id)
			break
		}
	}
	delete(m.senders, connectionID)
	m.syncDepth()
	m.updateTicker()
}

// updateTicker suspends the periodic matching pass entirely while fewer than
// two players are queued.
func (m *Matchmaker) updateTicker() {
	if len(m.queue) >= 2 && m.ticker == nil {
		m.ticker = time.NewTicker(matchInterval)
		m.tickC = m.ticker.C
	} else if len(m.queue) < 2 && m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
		m.tickC = nil
	}
}

// eloWindow is the tolerance a player has accumulated after waiting.
func eloWindow(waited time.Duration) float64 {
	return BaseEloRange + math.Floor(waited.Seconds()/10)*EloRangeExpansion
}

// tryMatch scans oldest-first and stops at the first eligible pair. One match
// per pass keeps wait-time behavior predictable; a globally optimal pairing is
// deliberately not attempted.
func (m *Matchmaker) tryMatch() {
	if len(m.queue) < 2 {
		return
	}

	now := m.now()
	entries := make([]*models.QueueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})

	for i := 0; i < len(entries); i++ {
		a := entries[i]
		rangeA := eloWindow(now.Sub(a.JoinedAt))

		for j := i + 1; j < len(entries); j++ {
			b := entries[j]
			rangeB := eloWindow(now.Sub(b.JoinedAt))

			eloDiff := math.Abs(a.Info.BattleElo - b.Info.BattleElo)
			if eloDiff <= math.Max(rangeA, rangeB) {
				m.createMatch(a, b)
				return
			}
		}
	}
}

// TargetDifficulty maps the pair's average rating to a generation difficulty:
// 800 elo -> 2, 1200 -> 5, 1600 -> 8, clamped to [1, 10], one decimal.
func TargetDifficulty(avgElo float64) float64 {
	d := 2 + (avgElo-800)*0.0075
	if d < 1 {
		d = 1
	}
	if d > 10 {
		d = 10
	}
	return math.Round(d*10) / 10
}

// BattleID derives the room identifier both players reconnect to.
func BattleID(seed int64, targetDifficulty float64) string {
	return strconv.FormatInt(seed, 10) + "-" + strconv.FormatFloat(targetDifficulty, 'f', -1, 64)
}

func (m *Matchmaker) createMatch(a, b *models.QueueEntry) {
	delete(m.queue, a.Info.PlayerID)
	delete(m.queue, b.Info.PlayerID)
	m.syncDepth()

	seed := m.newSeed()
	targetDifficulty := TargetDifficulty((a.Info.BattleElo + b.Info.BattleElo) / 2)
	battleID := BattleID(seed, targetDifficulty)

	log.Printf("matchmaker: matched %s (%.0f) vs %s (%.0f) -> battle %s",
		a.Info.PlayerID, a.Info.BattleElo, b.Info.PlayerID, b.Info.BattleElo, battleID)
	metrics.MatchesMade.Inc()

	m.notifyMatch(a, b.Info, battleID, seed, targetDifficulty)
	m.notifyMatch(b, a.Info, battleID, seed, targetDifficulty)

	delete(m.senders, a.ConnectionID)
	delete(m.senders, b.ConnectionID)
	m.updateTicker()
}

func (m *Matchmaker) notifyMatch(entry *models.QueueEntry, opponent models.PlayerInfo, battleID string, seed int64, targetDifficulty float64) {
	sender, ok := m.senders[entry.ConnectionID]
	if !ok {
		return
	}
	sender.Send(models.MatchFoundMessage{
		Type:             "match_found",
		BattleID:         battleID,
		Seed:             seed,
		TargetDifficulty: targetDifficulty,
		OpponentName:     opponent.PlayerName,
		OpponentElo:      opponent.BattleElo,
		OpponentCountry:  opponent.Country,
	})
}

func (m *Matchmaker) syncDepth() {
	m.depth.Store(int64(len(m.queue)))
	metrics.QueueDepth.Set(float64(len(m.queue)))
}
