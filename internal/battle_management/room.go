// Package battle_management runs each battle as an isolated single-goroutine
// actor. Connection events, inbound samples and timer callbacks all arrive on
// the same inbox and are handled one at a time, so room state needs no locks.
package battle_management

import (
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"battle/internal/game"
	"battle/internal/metrics"
	"battle/internal/models"
	"battle/internal/resulttoken"
	"battle/internal/ws"
)

// Phase of a battle. Only ever moves forward; Ended is terminal.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseCountdown
	PhasePlaying
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseCountdown:
		return "countdown"
	case PhasePlaying:
		return "playing"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

// Config holds the room timing knobs. Tests shrink them.
type Config struct {
	BattleDuration    time.Duration
	CountdownSeconds  int
	CountdownInterval time.Duration
	BroadcastInterval time.Duration
	DisconnectGrace   time.Duration
	SampleCooldown    time.Duration
	MaxSamples        int
	EvictAfter        time.Duration
	IdleTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		BattleDuration:    30 * time.Second,
		CountdownSeconds:  3,
		CountdownInterval: time.Second,
		BroadcastInterval: 200 * time.Millisecond,
		DisconnectGrace:   10 * time.Second,
		SampleCooldown:    50 * time.Millisecond,
		MaxSamples:        200,
		EvictAfter:        time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

// ResultSink receives settled battle summaries (published to redis in prod).
type ResultSink interface {
	PublishBattleResult(summary models.BattleSummary)
}

// Tagged union of inbox messages. Matched exhaustively in run().
type roomMsg interface{ isRoomMsg() }

type joinMsg struct {
	sender ws.Sender
	req    models.JoinMessage
}

type sampleMsg struct {
	connectionID string
	x            float64
}

type closeMsg struct{ connectionID string }

type countdownTickMsg struct{}

type kdeTickMsg struct{}

type battleTimeoutMsg struct{}

type graceExpiredMsg struct{ playerID string }

type shutdownMsg struct{}

func (joinMsg) isRoomMsg()          {}
func (sampleMsg) isRoomMsg()        {}
func (closeMsg) isRoomMsg()         {}
func (countdownTickMsg) isRoomMsg() {}
func (kdeTickMsg) isRoomMsg()       {}
func (battleTimeoutMsg) isRoomMsg() {}
func (graceExpiredMsg) isRoomMsg()  {}
func (shutdownMsg) isRoomMsg()      {}

// playerState is battle-room-scoped and mutated only by the room goroutine.
type playerState struct {
	info         models.PlayerInfo
	sender       ws.Sender
	samples      []float64
	lastKde      []float64
	matchPct     int
	connected    bool
	lastSampleAt time.Time
}

// Room is one isolated two-player battle keyed by "{seed}-{difficulty}".
type Room struct {
	id  string
	cfg Config

	phase            Phase
	players          map[string]*playerState
	joinOrder        []string
	seed             int64
	targetDifficulty float64
	level            game.GeneratedLevel
	evalPoints       []float64
	startTime        time.Time
	countdownLeft    int

	inbox  chan roomMsg
	timers map[string]*time.Timer

	secret []byte // result-token secret; empty disables signing
	sink   ResultSink
	onEnd  func(roomID string)
	now    func() time.Time
}

func newRoom(id string, cfg Config, secret []byte, sink ResultSink, onEnd func(string)) *Room {
	r := &Room{
		id:      id,
		cfg:     cfg,
		phase:   PhaseWaiting,
		players: make(map[string]*playerState),
		inbox:   make(chan roomMsg, 256),
		timers:  make(map[string]*time.Timer),
		secret:  secret,
		sink:    sink,
		onEnd:   onEnd,
		now:     time.Now,
	}
	// Rooms abandoned before a battle ever starts shut down on their own;
	// the timer is re-armed per join and dropped once the battle initializes.
	r.schedule("idle", cfg.IdleTimeout, shutdownMsg{})
	return r
}

// post delivers a message to the room goroutine without blocking. Messages to
// a full or torn-down inbox are dropped; every mutating handler re-checks the
// phase anyway.
func (r *Room) post(msg roomMsg) {
	select {
	case r.inbox <- msg:
	default:
		log.Printf("room %s: inbox full, dropping %T", r.id, msg)
	}
}

func (r *Room) run() {
	for msg := range r.inbox {
		switch v := msg.(type) {
		case joinMsg:
			r.handleJoin(v.sender, v.req)
		case sampleMsg:
			r.handleSample(v.connectionID, v.x)
		case closeMsg:
			r.handleClose(v.connectionID)
		case countdownTickMsg:
			r.handleCountdownTick()
		case kdeTickMsg:
			r.handleKdeTick()
		case battleTimeoutMsg:
			r.handleBattleTimeout()
		case graceExpiredMsg:
			r.handleGraceExpired(v.playerID)
		case shutdownMsg:
			r.cancelAllTimers()
			if r.onEnd != nil {
				r.onEnd(r.id)
			}
			return
		}
	}
}

// --- timer plumbing ---

// schedule arms a named timer whose expiry posts back into the inbox. Arming
// an existing name replaces the prior timer.
func (r *Room) schedule(name string, d time.Duration, msg roomMsg) {
	if t, ok := r.timers[name]; ok {
		t.Stop()
	}
	r.timers[name] = time.AfterFunc(d, func() { r.post(msg) })
}

func (r *Room) cancelTimer(name string) {
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}

func (r *Room) cancelAllTimers() {
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
}

// --- join / connection lifecycle ---

func (r *Room) handleJoin(sender ws.Sender, req models.JoinMessage) {
	if req.PlayerID == "" {
		return
	}

	if existing, ok := r.players[req.PlayerID]; ok {
		r.handleRejoin(existing, sender)
		return
	}

	if r.phase == PhaseEnded {
		sender.Send(models.ErrorMessage{Type: "error", Message: "Battle has ended"})
		return
	}
	if len(r.players) >= 2 {
		sender.Send(models.ErrorMessage{Type: "error", Message: "Battle is full"})
		return
	}

	r.players[req.PlayerID] = &playerState{
		info: models.PlayerInfo{
			PlayerID:   req.PlayerID,
			PlayerName: req.PlayerName,
			BattleElo:  req.BattleElo,
			Country:    req.Country,
		},
		sender:    sender,
		lastKde:   make([]float64, game.KDEEvalPoints),
		connected: true,
	}
	r.joinOrder = append(r.joinOrder, req.PlayerID)

	if len(r.players) == 1 {
		r.schedule("idle", r.cfg.IdleTimeout, shutdownMsg{})
		sender.Send(models.WaitingMessage{Type: "waiting"})
		return
	}
	r.initBattle()
}

// handleRejoin is idempotent: a known player id cancels the pending grace
// timer and resumes broadcast targeting without restarting the battle.
func (r *Room) handleRejoin(player *playerState, sender ws.Sender) {
	player.sender = sender
	player.connected = true
	r.cancelTimer("grace:" + player.info.PlayerID)

	switch r.phase {
	case PhasePlaying:
		opponent := r.opponentOf(player.info.PlayerID)
		remaining := r.cfg.BattleDuration - r.now().Sub(r.startTime)
		if remaining < 0 {
			remaining = 0
		}
		sender.Send(r.startMessage(opponent, remaining))
	case PhaseEnded:
		sender.Send(models.ErrorMessage{Type: "error", Message: "Battle has ended"})
	}
}

func (r *Room) handleClose(connectionID string) {
	for id, player := range r.players {
		if player.sender != nil && player.sender.ID() == connectionID {
			player.connected = false
			if r.phase == PhasePlaying {
				// Grace period; the opponent wins if no rejoin.
				r.schedule("grace:"+id, r.cfg.DisconnectGrace, graceExpiredMsg{playerID: id})
			}
			return
		}
	}
}

// --- battle setup ---

// initBattle parses seed and difficulty out of the room id and generates the
// hidden target. Unparseable ids fall back to a fresh seed at difficulty 5.
func (r *Room) initBattle() {
	seedStr, diffStr, _ := strings.Cut(r.id, "-")
	seed, err := strconv.ParseInt(seedStr, 10, 64)
	if err != nil || seed == 0 {
		seed = r.now().UnixMilli()
	}
	targetDifficulty, err := strconv.ParseFloat(diffStr, 64)
	if err != nil || targetDifficulty == 0 {
		targetDifficulty = 5.0
	}

	r.seed = seed
	r.targetDifficulty = targetDifficulty
	r.level = game.GenerateLevel(seed, targetDifficulty)
	r.evalPoints = game.Linspace(r.level.XRange[0], r.level.XRange[1], game.KDEEvalPoints)

	r.cancelTimer("idle")
	r.startCountdown()
}

func (r *Room) startCountdown() {
	r.phase = PhaseCountdown
	r.countdownLeft = r.cfg.CountdownSeconds
	r.broadcast(models.CountdownMessage{Type: "countdown", Seconds: r.countdownLeft})
	r.schedule("countdown", r.cfg.CountdownInterval, countdownTickMsg{})
}

func (r *Room) handleCountdownTick() {
	if r.phase != PhaseCountdown {
		return
	}
	r.countdownLeft--
	if r.countdownLeft > 0 {
		r.broadcast(models.CountdownMessage{Type: "countdown", Seconds: r.countdownLeft})
		r.schedule("countdown", r.cfg.CountdownInterval, countdownTickMsg{})
		return
	}
	r.cancelTimer("countdown")
	r.startBattle()
}

func (r *Room) startBattle() {
	r.phase = PhasePlaying
	r.startTime = r.now()

	for _, id := range r.joinOrder {
		player := r.players[id]
		opponent := r.opponentOf(id)
		player.sender.Send(r.startMessage(opponent, r.cfg.BattleDuration))
	}

	r.schedule("kde", r.cfg.BroadcastInterval, kdeTickMsg{})
	r.schedule("end", r.cfg.BattleDuration, battleTimeoutMsg{})

	log.Printf("room %s: battle started (seed %d, difficulty %.1f, %d hidden clicks)",
		r.id, r.seed, r.targetDifficulty, len(r.level.HiddenClicks))
}

func (r *Room) startMessage(opponent *playerState, duration time.Duration) models.StartMessage {
	msg := models.StartMessage{
		Type:             "start",
		Seed:             r.seed,
		TargetDifficulty: r.targetDifficulty,
		OpponentName:     "Opponent",
		OpponentElo:      1200,
		DurationMs:       duration.Milliseconds(),
	}
	if opponent != nil {
		msg.OpponentName = opponent.info.PlayerName
		msg.OpponentElo = opponent.info.BattleElo
		msg.OpponentCountry = opponent.info.Country
	}
	return msg
}

// --- sample ingestion ---

func (r *Room) handleSample(connectionID string, x float64) {
	if r.phase != PhasePlaying {
		return
	}

	player := r.playerByConnection(connectionID)
	if player == nil {
		return
	}

	if math.IsNaN(x) || math.IsInf(x, 0) {
		metrics.SamplesRejected.WithLabelValues("non_finite").Inc()
		return
	}
	if x < r.level.XRange[0] || x > r.level.XRange[1] {
		metrics.SamplesRejected.WithLabelValues("out_of_range").Inc()
		return
	}
	if len(player.samples) >= r.cfg.MaxSamples {
		metrics.SamplesRejected.WithLabelValues("cap").Inc()
		return
	}
	now := r.now()
	if now.Sub(player.lastSampleAt) < r.cfg.SampleCooldown {
		metrics.SamplesRejected.WithLabelValues("rate_limited").Inc()
		return
	}
	player.lastSampleAt = now

	player.samples = append(player.samples, x)
	player.lastKde = game.ComputeKDE(player.samples, r.evalPoints)
	player.matchPct = game.MatchPercent(game.NormalizedMSE(player.samples, r.level.HiddenClicks, r.evalPoints))

	if player.matchPct >= game.JackpotThreshold {
		r.handleJackpot(player)
	}
}

// --- periodic broadcast ---

// handleKdeTick pushes each player their opponent's latest curve. Players
// never receive their own curve from the room; the local preview is the
// client's job.
func (r *Room) handleKdeTick() {
	if r.phase != PhasePlaying {
		return
	}

	for _, id := range r.joinOrder {
		player := r.players[id]
		opponent := r.opponentOf(id)
		if opponent == nil || !player.connected {
			continue
		}
		player.sender.Send(models.OpponentKdeMessage{
			Type:     "opponent_kde",
			Kde:      opponent.lastKde,
			MatchPct: opponent.matchPct,
		})
	}

	r.schedule("kde", r.cfg.BroadcastInterval, kdeTickMsg{})
}

// --- terminal transitions ---

func (r *Room) handleJackpot(winner *playerState) {
	if r.phase != PhasePlaying {
		return
	}
	r.endPhase()

	elapsed := r.now().Sub(r.startTime).Milliseconds()
	winnerScore := game.Score(game.NormalizedMSE(winner.samples, r.level.HiddenClicks, r.evalPoints), elapsed)

	r.broadcast(models.JackpotMessage{
		Type:           "jackpot",
		WinnerID:       winner.info.PlayerID,
		WinnerName:     winner.info.PlayerName,
		WinnerScore:    winnerScore,
		WinnerMatchPct: winner.matchPct,
	})

	loser := r.opponentOf(winner.info.PlayerID)
	if loser != nil {
		loserScore := game.Score(game.NormalizedMSE(loser.samples, r.level.HiddenClicks, r.evalPoints), elapsed)
		r.settle(winner, winnerScore, loser, loserScore, "jackpot")
	}
}

func (r *Room) handleBattleTimeout() {
	if r.phase != PhasePlaying {
		return
	}
	r.endPhase()

	if len(r.joinOrder) < 2 {
		return
	}
	elapsed := r.cfg.BattleDuration.Milliseconds()
	p1 := r.players[r.joinOrder[0]]
	p2 := r.players[r.joinOrder[1]]
	p1Score := game.Score(game.NormalizedMSE(p1.samples, r.level.HiddenClicks, r.evalPoints), elapsed)
	p2Score := game.Score(game.NormalizedMSE(p2.samples, r.level.HiddenClicks, r.evalPoints), elapsed)

	winner, winnerScore := p1, p1Score
	loser, loserScore := p2, p2Score
	if p2Score > p1Score {
		winner, winnerScore = p2, p2Score
		loser, loserScore = p1, p1Score
	}
	r.settle(winner, winnerScore, loser, loserScore, "timeout")
}

func (r *Room) handleGraceExpired(playerID string) {
	if r.phase != PhasePlaying {
		return
	}
	loser, ok := r.players[playerID]
	if !ok || loser.connected {
		return
	}
	r.endPhase()

	winner := r.opponentOf(playerID)
	if winner == nil {
		return
	}
	elapsed := r.now().Sub(r.startTime).Milliseconds()
	winnerScore := game.Score(game.NormalizedMSE(winner.samples, r.level.HiddenClicks, r.evalPoints), elapsed)
	loserScore := game.Score(game.NormalizedMSE(loser.samples, r.level.HiddenClicks, r.evalPoints), elapsed)
	r.settle(winner, winnerScore, loser, loserScore, "disconnect")
}

// endPhase performs the one-way transition to ended and cancels every active
// timer before any settlement message goes out. The room lingers so that late
// joins see "Battle has ended" instead of a fresh room, then shuts down.
func (r *Room) endPhase() {
	r.phase = PhaseEnded
	r.cancelAllTimers()
	r.schedule("evict", r.cfg.EvictAfter, shutdownMsg{})
}

// --- settlement ---

func (r *Room) settle(winner *playerState, winnerScore int, loser *playerState, loserScore int, reason string) {
	winnerDelta, loserDelta := game.EloDeltas(winner.info.BattleElo, loser.info.BattleElo)

	for _, id := range r.joinOrder {
		player := r.players[id]
		isWinner := id == winner.info.PlayerID
		eloDelta := loserDelta
		opponent := winner
		if isWinner {
			eloDelta = winnerDelta
			opponent = loser
		}

		token := r.signResult(player.info.PlayerID, isWinner, eloDelta)

		player.sender.Send(models.BattleEndMessage{
			Type:            "battle_end",
			WinnerID:        winner.info.PlayerID,
			WinnerName:      winner.info.PlayerName,
			WinnerScore:     winnerScore,
			WinnerMatchPct:  winner.matchPct,
			LoserScore:      loserScore,
			LoserMatchPct:   loser.matchPct,
			YourEloDelta:    eloDelta,
			ResultToken:     token,
			OpponentSamples: opponent.samples,
		})
	}

	metrics.BattlesCompleted.WithLabelValues(reason).Inc()
	log.Printf("room %s: settled (%s) winner=%s %d loser=%s %d",
		r.id, reason, winner.info.PlayerID, winnerScore, loser.info.PlayerID, loserScore)

	if r.sink != nil {
		r.sink.PublishBattleResult(models.BattleSummary{
			BattleID:       r.id,
			WinnerID:       winner.info.PlayerID,
			LoserID:        loser.info.PlayerID,
			WinnerScore:    winnerScore,
			LoserScore:     loserScore,
			WinnerMatchPct: winner.matchPct,
			LoserMatchPct:  loser.matchPct,
			WinnerDelta:    winnerDelta,
			LoserDelta:     loserDelta,
			Reason:         reason,
			EndedAt:        r.now(),
		})
	}
}

// signResult returns "" when no secret is configured or signing fails; the
// battle still concludes locally, only the cross-service token is skipped.
func (r *Room) signResult(playerID string, won bool, eloDelta int) string {
	if len(r.secret) == 0 {
		return ""
	}
	token, err := resulttoken.Sign(resulttoken.Payload{
		BattleID: r.id,
		PlayerID: playerID,
		Won:      won,
		EloDelta: eloDelta,
		Ts:       r.now().UnixMilli(),
	}, r.secret)
	if err != nil {
		log.Printf("room %s: signing result for %s failed: %v", r.id, playerID, err)
		return ""
	}
	return token
}

// --- helpers ---

func (r *Room) opponentOf(playerID string) *playerState {
	for id, player := range r.players {
		if id != playerID {
			return player
		}
	}
	return nil
}

func (r *Room) playerByConnection(connectionID string) *playerState {
	for _, player := range r.players {
		if player.sender != nil && player.sender.ID() == connectionID {
			return player
		}
	}
	return nil
}

func (r *Room) broadcast(v interface{}) {
	for _, player := range r.players {
		if player.connected {
			player.sender.Send(v)
		}
	}
}
