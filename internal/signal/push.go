package signal

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/app"
	"github.com/iftarcode/sfu-server/internal/domain"
)

// Conn abstracts the live push transport for one peer. Owned by the
// adapter; the adapter must Close() it.
type Conn interface {
	TrySend([]byte) error
	Close()
}

// Push is the push-mode strategy: a side table of live connection handles
// keyed by peer id. The handle is a non-owning lookup; peer lifetime never
// depends on it. A message to a peer without a live connection is dropped.
type Push struct {
	mu    sync.RWMutex
	conns map[app.PeerID]Conn
	rooms map[app.PeerID]domain.RoomID
}

func NewPush() *Push {
	return &Push{
		conns: make(map[app.PeerID]Conn),
		rooms: make(map[app.PeerID]domain.RoomID),
	}
}

// Bind registers the live connection of a peer in a room.
func (p *Push) Bind(peerID app.PeerID, roomID domain.RoomID, conn Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[peerID] = conn
	p.rooms[peerID] = roomID
}

// Unbind drops the peer's connection entry. The connection itself is
// closed by its owning adapter.
func (p *Push) Unbind(peerID app.PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, peerID)
	delete(p.rooms, peerID)
}

func (p *Push) Broadcast(roomID domain.RoomID, exclude app.PeerID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.push").Msg("broadcast marshal")
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for peerID, conn := range p.conns {
		if peerID == exclude || p.rooms[peerID] != roomID {
			continue
		}
		if err := conn.TrySend(b); err != nil {
			log.Debug().Err(err).Str("module", "signal.push").Str("peer", string(peerID)).Msg("push send dropped")
		}
	}
}

func (p *Push) Unicast(peerID app.PeerID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.push").Msg("unicast marshal")
		return
	}
	p.mu.RLock()
	conn, ok := p.conns[peerID]
	p.mu.RUnlock()
	if !ok {
		// No live connection: push mode drops, no retry.
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal.push").Str("peer", string(peerID)).Msg("push send dropped")
	}
}
