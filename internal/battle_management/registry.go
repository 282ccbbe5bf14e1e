package battle_management

import (
	"log"
	"sync"

	"battle/internal/metrics"
)

// Registry is the process-wide mapping from battle id to room actor. Rooms
// are created lazily on first reference and evicted once their terminal state
// has settled and the linger period passed. The mutex guards only the map;
// each room's state is owned by its own goroutine.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	cfg    Config
	secret []byte
	sink   ResultSink
}

func NewRegistry(cfg Config, secret []byte, sink ResultSink) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		cfg:    cfg,
		secret: secret,
		sink:   sink,
	}
}

// GetOrCreate returns the room for a battle id, starting its actor goroutine
// on first reference.
func (g *Registry) GetOrCreate(battleID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[battleID]; ok {
		return room
	}

	room := newRoom(battleID, g.cfg, g.secret, g.sink, g.remove)
	g.rooms[battleID] = room
	go room.run()
	metrics.ActiveRooms.Set(float64(len(g.rooms)))
	log.Printf("registry: created room %s", battleID)
	return room
}

func (g *Registry) remove(battleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, battleID)
	metrics.ActiveRooms.Set(float64(len(g.rooms)))
	log.Printf("registry: evicted room %s", battleID)
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}
