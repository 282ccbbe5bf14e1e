package queue_management

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle/internal/models"
)

// fakeSender records everything sent to it.
type fakeSender struct {
	id string

	mu   sync.Mutex
	sent []interface{}
}

func newFakeSender(id string) *fakeSender { return &fakeSender{id: id} }

func (f *fakeSender) ID() string { return f.id }

func (f *fakeSender) Send(v interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
}

func (f *fakeSender) Close() {}

func (f *fakeSender) messages() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}(nil), f.sent...)
}

func (f *fakeSender) lastMatchFound() *models.MatchFoundMessage {
	for _, m := range f.messages() {
		if mf, ok := m.(models.MatchFoundMessage); ok {
			return &mf
		}
	}
	return nil
}

// newTestMatchmaker returns an unstarted matchmaker with a controllable
// clock; handlers are driven directly, the way the actor goroutine would.
func newTestMatchmaker(at time.Time) (*Matchmaker, *time.Time) {
	m := NewMatchmaker()
	current := at
	m.now = func() time.Time { return current }
	m.newSeed = func() int64 { return 1700000000000 }
	return m, &current
}

func join(m *Matchmaker, sender *fakeSender, playerID string, elo float64) {
	m.handleJoinQueue(sender, models.JoinQueueMessage{
		PlayerID:   playerID,
		PlayerName: "name-" + playerID,
		BattleElo:  elo,
	})
}

func TestJoinQueueSendsStatus(t *testing.T) {
	m, _ := newTestMatchmaker(time.Now())
	s := newFakeSender("c1")

	join(m, s, "p1", 1200)

	require.NotEmpty(t, s.messages())
	status, ok := s.messages()[0].(models.QueueStatusMessage)
	require.True(t, ok)
	assert.Equal(t, 1, status.Position)
	assert.Equal(t, 1, status.WaitingCount)
	assert.Equal(t, 1, m.WaitingCount())
}

func TestJoinQueueReplacesExistingEntry(t *testing.T) {
	m, _ := newTestMatchmaker(time.Now())
	s1 := newFakeSender("c1")
	s2 := newFakeSender("c2")

	join(m, s1, "p1", 1200)
	join(m, s2, "p1", 1250) // same player rejoining on a new connection

	assert.Equal(t, 1, m.WaitingCount())
	assert.Equal(t, 1250.0, m.queue["p1"].Info.BattleElo)
	assert.Equal(t, "c2", m.queue["p1"].ConnectionID)
	_, staleKept := m.senders["c1"]
	assert.False(t, staleKept)
}

func TestLeaveQueue(t *testing.T) {
	m, _ := newTestMatchmaker(time.Now())
	s := newFakeSender("c1")

	join(m, s, "p1", 1200)
	m.removeByConnection("c1")

	assert.Zero(t, m.WaitingCount())
}

func TestCloseRatingsMatchImmediately(t *testing.T) {
	m, _ := newTestMatchmaker(time.Now())
	s1 := newFakeSender("c1")
	s2 := newFakeSender("c2")

	join(m, s1, "p1", 1200)
	join(m, s2, "p2", 1300) // diff 100 <= base window 200

	require.NotNil(t, s1.lastMatchFound())
	require.NotNil(t, s2.lastMatchFound())
	assert.Zero(t, m.WaitingCount())
}

func TestDistantRatingsWaitForWindowExpansion(t *testing.T) {
	start := time.Now()
	m, clock := newTestMatchmaker(start)
	s1 := newFakeSender("c1")
	s2 := newFakeSender("c2")

	join(m, s1, "p1", 1200)
	join(m, s2, "p2", 1450) // diff 250 > base window 200

	assert.Nil(t, s1.lastMatchFound(), "must not match at t=0")
	assert.Equal(t, 2, m.WaitingCount())

	// After 10s of waiting the window expands to 300 and the pair matches.
	*clock = start.Add(10 * time.Second)
	m.tryMatch()

	require.NotNil(t, s1.lastMatchFound())
	require.NotNil(t, s2.lastMatchFound())
	assert.Zero(t, m.WaitingCount())
}

func TestOldestWaitingPairMatchesFirst(t *testing.T) {
	start := time.Now()
	m, clock := newTestMatchmaker(start)
	s1 := newFakeSender("c1")
	s2 := newFakeSender("c2")
	s3 := newFakeSender("c3")

	join(m, s1, "p1", 1000)
	*clock = start.Add(time.Second)
	join(m, s2, "p2", 2000) // far from everyone for now
	*clock = start.Add(2 * time.Second)
	join(m, s3, "p3", 1100)

	// p1 joined first and p3 is within its window; p2 stays queued.
	require.NotNil(t, s1.lastMatchFound())
	require.NotNil(t, s3.lastMatchFound())
	assert.Nil(t, s2.lastMatchFound())
	assert.Equal(t, 1, m.WaitingCount())
}

func TestMatchFoundPayload(t *testing.T) {
	m, _ := newTestMatchmaker(time.Now())
	s1 := newFakeSender("c1")
	s2 := newFakeSender("c2")

	join(m, s1, "p1", 1200)
	join(m, s2, "p2", 1200)

	mf := s1.lastMatchFound()
	require.NotNil(t, mf)
	assert.Equal(t, int64(1700000000000), mf.Seed)
	assert.Equal(t, 5.0, mf.TargetDifficulty) // avg 1200 -> 2 + 400*0.0075
	assert.Equal(t, "1700000000000-5", mf.BattleID)
	assert.Equal(t, "name-p2", mf.OpponentName)
	assert.Equal(t, 1200.0, mf.OpponentElo)

	mf2 := s2.lastMatchFound()
	require.NotNil(t, mf2)
	assert.Equal(t, "name-p1", mf2.OpponentName)
	assert.Equal(t, mf.BattleID, mf2.BattleID)
}

func TestEloWindow(t *testing.T) {
	assert.Equal(t, 200.0, eloWindow(0))
	assert.Equal(t, 200.0, eloWindow(9*time.Second))
	assert.Equal(t, 300.0, eloWindow(10*time.Second))
	assert.Equal(t, 400.0, eloWindow(25*time.Second))
}

func TestTargetDifficulty(t *testing.T) {
	assert.Equal(t, 2.0, TargetDifficulty(800))
	assert.Equal(t, 5.0, TargetDifficulty(1200))
	assert.Equal(t, 8.0, TargetDifficulty(1600))
	assert.Equal(t, 1.0, TargetDifficulty(0))     // clamped low
	assert.Equal(t, 10.0, TargetDifficulty(5000)) // clamped high
}

func TestBattleID(t *testing.T) {
	assert.Equal(t, "1700000000000-4.5", BattleID(1700000000000, 4.5))
	assert.Equal(t, "42-7", BattleID(42, 7.0))
}
