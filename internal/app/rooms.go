// Package app owns the live session state: the room registry, per-peer
// media resource graphs and their lifecycle invariants. Rooms exclusively
// own their peers; peers exclusively own their transports, producers and
// consumers. Nothing under a peer outlives the peer's transports.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/media"
)

type PeerID string

// Peer is one participant's media resource graph. All maps are guarded by
// the owning Room's mutex.
type Peer struct {
	ID          PeerID
	DisplayName string

	transports map[string]media.Transport
	producers  map[string]media.Producer
	consumers  map[string]media.Consumer
}

func newPeer(id PeerID, displayName string) *Peer {
	return &Peer{
		ID:          id,
		DisplayName: displayName,
		transports:  make(map[string]media.Transport),
		producers:   make(map[string]media.Producer),
		consumers:   make(map[string]media.Consumer),
	}
}

// Room binds one router to a set of peers. The router never changes after
// creation; there is no worker migration.
type Room struct {
	ID       domain.RoomID
	router   media.Router
	workerID string

	mu    sync.RWMutex
	peers map[PeerID]*Peer
}

func (r *Room) peer(id PeerID) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// PeerCount returns the number of joined peers.
func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Registry maps room identifiers to live Rooms. Rooms are created lazily
// on first join and destroyed when their peer set becomes empty.
type Registry struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*Room

	pool     *media.Pool
	notifier Notifier
}

func NewRegistry(pool *media.Pool, notifier Notifier) *Registry {
	return &Registry{
		rooms:    make(map[domain.RoomID]*Room),
		pool:     pool,
		notifier: notifier,
	}
}

// getOrCreate resolves a Room, assigning a worker and creating its router
// on first use. The registry lock is held across router creation so two
// concurrent joins for a never-seen room cannot create two Rooms.
func (g *Registry) getOrCreate(ctx context.Context, roomID domain.RoomID) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[roomID]; ok {
		return room, nil
	}
	worker, err := g.pool.Assign()
	if err != nil {
		return nil, err
	}
	router, err := worker.CreateRouter(ctx)
	if err != nil {
		return nil, err
	}
	room := &Room{
		ID:       roomID,
		router:   router,
		workerID: worker.ID(),
		peers:    make(map[PeerID]*Peer),
	}
	g.rooms[roomID] = room
	log.Info().
		Str("module", "app.rooms").
		Str("room", string(roomID)).
		Str("worker", worker.ID()).
		Msg("room created")
	return room, nil
}

func (g *Registry) room(roomID domain.RoomID) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	return room, ok
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// WorkerOf reports which worker a live room is bound to.
func (g *Registry) WorkerOf(roomID domain.RoomID) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	if !ok {
		return "", false
	}
	return room.workerID, true
}

func (g *Registry) dropRoomIfEmpty(room *Room) {
	room.mu.RLock()
	empty := len(room.peers) == 0
	room.mu.RUnlock()
	if !empty {
		return
	}

	g.mu.Lock()
	// Re-check under the registry lock: a join may have raced the leave.
	room.mu.RLock()
	empty = len(room.peers) == 0
	room.mu.RUnlock()
	if empty {
		delete(g.rooms, room.ID)
	}
	g.mu.Unlock()
	if !empty {
		return
	}

	if err := room.router.Close(); err != nil {
		log.Warn().Str("module", "app.rooms").Str("room", string(room.ID)).Err(err).Msg("router close")
	}
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Msg("room destroyed")
}

func (g *Registry) broadcast(roomID domain.RoomID, exclude PeerID, v any) {
	if g.notifier != nil {
		g.notifier.Broadcast(roomID, exclude, v)
	}
}

func (g *Registry) unicast(peerID PeerID, v any) {
	if g.notifier != nil {
		g.notifier.Unicast(peerID, v)
	}
}
