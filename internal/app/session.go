package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/media"
)

// JoinResult is what a newly joined peer needs to start negotiating.
type JoinResult struct {
	PeerID          PeerID                `json:"peerId"`
	RTPCapabilities media.RTPCapabilities `json:"rtpCapabilities"`
}

// ConsumeResult carries everything the consuming client needs to attach
// the new consumer locally.
type ConsumeResult struct {
	ID            string          `json:"id"`
	ProducerID    string          `json:"producerId"`
	Kind          media.Kind      `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
}

// ProducerInfo is one entry of the getProducers listing.
type ProducerInfo struct {
	ProducerID  string     `json:"producerId"`
	PeerID      PeerID     `json:"peerId"`
	DisplayName string     `json:"peerName"`
	Kind        media.Kind `json:"kind"`
}

// JoinRoom resolves or creates the room, registers the peer and announces
// it to everyone already there. Joining twice with the same peer id first
// cascades the previous session away.
func (g *Registry) JoinRoom(ctx context.Context, roomID domain.RoomID, peerID PeerID, displayName string) (JoinResult, error) {
	room, err := g.getOrCreate(ctx, roomID)
	if err != nil {
		return JoinResult{}, err
	}

	room.mu.Lock()
	_, rejoin := room.peers[peerID]
	room.mu.Unlock()
	if rejoin {
		g.RemovePeer(ctx, roomID, peerID)
		// The room may have been destroyed if this peer was the last one.
		if room, err = g.getOrCreate(ctx, roomID); err != nil {
			return JoinResult{}, err
		}
	}

	peer := newPeer(peerID, displayName)
	room.mu.Lock()
	room.peers[peerID] = peer
	room.mu.Unlock()

	log.Info().
		Str("module", "app.session").
		Str("room", string(roomID)).
		Str("peer", string(peerID)).
		Str("name", displayName).
		Msg("peer joined")
	g.broadcast(roomID, peerID, newPeerEvent(peer))

	return JoinResult{PeerID: peerID, RTPCapabilities: room.router.RTPCapabilities()}, nil
}

// Capabilities returns the read-only codec snapshot of the room's router.
func (g *Registry) Capabilities(roomID domain.RoomID) (media.RTPCapabilities, error) {
	room, ok := g.room(roomID)
	if !ok {
		return media.RTPCapabilities{}, ErrRoomNotFound
	}
	return room.router.RTPCapabilities(), nil
}

// CreateTransport allocates a transport on the room's router and registers
// it under the calling peer.
func (g *Registry) CreateTransport(ctx context.Context, roomID domain.RoomID, peerID PeerID) (media.TransportOptions, error) {
	room, ok := g.room(roomID)
	if !ok {
		return media.TransportOptions{}, ErrRoomNotFound
	}
	peer, ok := room.peer(peerID)
	if !ok {
		return media.TransportOptions{}, ErrPeerNotFound
	}

	transport, err := room.router.CreateTransport(ctx)
	if err != nil {
		return media.TransportOptions{}, err
	}

	room.mu.Lock()
	peer.transports[transport.ID()] = transport
	room.mu.Unlock()
	return transport.Options(), nil
}

func (g *Registry) transportOf(roomID domain.RoomID, peerID PeerID, transportID string) (media.Transport, error) {
	room, ok := g.room(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	peer, ok := room.peer(peerID)
	if !ok {
		return nil, ErrPeerNotFound
	}
	room.mu.RLock()
	transport, ok := peer.transports[transportID]
	room.mu.RUnlock()
	if !ok {
		return nil, ErrTransportNotFound
	}
	return transport, nil
}

// ConnectTransport completes the security handshake of a previously
// created transport.
func (g *Registry) ConnectTransport(ctx context.Context, roomID domain.RoomID, peerID PeerID, transportID string, clientParameters json.RawMessage) error {
	transport, err := g.transportOf(roomID, peerID, transportID)
	if err != nil {
		return err
	}
	return transport.Connect(ctx, clientParameters)
}

// Produce attaches a producer to a connected transport and announces it to
// every other peer in the room.
func (g *Registry) Produce(ctx context.Context, roomID domain.RoomID, peerID PeerID, transportID string, kind media.Kind, rtpParameters json.RawMessage) (string, error) {
	room, ok := g.room(roomID)
	if !ok {
		return "", ErrRoomNotFound
	}
	peer, ok := room.peer(peerID)
	if !ok {
		return "", ErrPeerNotFound
	}
	room.mu.RLock()
	transport, ok := peer.transports[transportID]
	room.mu.RUnlock()
	if !ok {
		return "", ErrTransportNotFound
	}

	producer, err := transport.Produce(ctx, kind, rtpParameters)
	if err != nil {
		return "", err
	}

	room.mu.Lock()
	peer.producers[producer.ID()] = producer
	room.mu.Unlock()

	g.broadcast(roomID, peerID, newProducerEvent(peer, producer.ID(), producer.Kind()))
	return producer.ID(), nil
}

// Consume checks capability compatibility and attaches a paused consumer
// bound to the remote producer.
func (g *Registry) Consume(ctx context.Context, roomID domain.RoomID, peerID PeerID, transportID, producerID string, caps media.RTPCapabilities) (ConsumeResult, error) {
	room, ok := g.room(roomID)
	if !ok {
		return ConsumeResult{}, ErrRoomNotFound
	}
	peer, ok := room.peer(peerID)
	if !ok {
		return ConsumeResult{}, ErrPeerNotFound
	}
	room.mu.RLock()
	transport, ok := peer.transports[transportID]
	room.mu.RUnlock()
	if !ok {
		return ConsumeResult{}, ErrTransportNotFound
	}

	if !room.router.CanConsume(producerID, caps) {
		return ConsumeResult{}, ErrCannotConsume
	}

	consumer, err := transport.Consume(ctx, producerID, caps)
	if err != nil {
		return ConsumeResult{}, err
	}

	room.mu.Lock()
	peer.consumers[consumer.ID()] = consumer
	room.mu.Unlock()

	return ConsumeResult{
		ID:            consumer.ID(),
		ProducerID:    consumer.ProducerID(),
		Kind:          consumer.Kind(),
		RTPParameters: consumer.RTPParameters(),
	}, nil
}

// ResumeConsumer transitions a consumer from paused to active.
func (g *Registry) ResumeConsumer(roomID domain.RoomID, peerID PeerID, consumerID string) error {
	room, ok := g.room(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	peer, ok := room.peer(peerID)
	if !ok {
		return ErrPeerNotFound
	}
	room.mu.RLock()
	consumer, ok := peer.consumers[consumerID]
	room.mu.RUnlock()
	if !ok {
		return ErrConsumerNotFound
	}
	return consumer.Resume()
}

// Producers lists every other peer's producers, for late joiners.
func (g *Registry) Producers(roomID domain.RoomID, exclude PeerID) []ProducerInfo {
	room, ok := g.room(roomID)
	if !ok {
		return nil
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	var out []ProducerInfo
	for id, p := range room.peers {
		if id == exclude {
			continue
		}
		for producerID, producer := range p.producers {
			out = append(out, ProducerInfo{
				ProducerID:  producerID,
				PeerID:      id,
				DisplayName: p.DisplayName,
				Kind:        producer.Kind(),
			})
		}
	}
	return out
}

// RemovePeer tears a peer down: every transport it owns is closed, which
// cascades into its producers and consumers; consumers on other peers that
// were fed by this peer's producers are closed too, and their owners get a
// consumerClosed notification. If the peer set becomes empty the room is
// destroyed.
func (g *Registry) RemovePeer(ctx context.Context, roomID domain.RoomID, peerID PeerID) {
	room, ok := g.room(roomID)
	if !ok {
		return
	}

	type orphan struct {
		owner      PeerID
		consumerID string
		consumer   media.Consumer
	}

	room.mu.Lock()
	peer, ok := room.peers[peerID]
	if !ok {
		room.mu.Unlock()
		return
	}
	delete(room.peers, peerID)

	producerIDs := make(map[string]struct{}, len(peer.producers))
	for id := range peer.producers {
		producerIDs[id] = struct{}{}
	}

	// Collect consumers on other peers that are fed by this peer's
	// producers; the source producer closing closes them as well.
	var orphans []orphan
	for ownerID, other := range room.peers {
		for consumerID, consumer := range other.consumers {
			if _, fed := producerIDs[consumer.ProducerID()]; fed {
				orphans = append(orphans, orphan{owner: ownerID, consumerID: consumerID, consumer: consumer})
				delete(other.consumers, consumerID)
			}
		}
	}

	transports := make([]media.Transport, 0, len(peer.transports))
	for _, t := range peer.transports {
		transports = append(transports, t)
	}
	peer.transports = make(map[string]media.Transport)
	peer.producers = make(map[string]media.Producer)
	peer.consumers = make(map[string]media.Consumer)
	room.mu.Unlock()

	for _, t := range transports {
		if err := t.Close(); err != nil {
			log.Warn().Str("module", "app.session").Str("transport", t.ID()).Err(err).Msg("transport close")
		}
	}
	for _, o := range orphans {
		_ = o.consumer.Close()
		g.unicast(o.owner, consumerClosedEvent(o.consumerID))
	}

	log.Info().
		Str("module", "app.session").
		Str("room", string(roomID)).
		Str("peer", string(peerID)).
		Msg("peer removed")
	g.broadcast(roomID, peerID, peerLeftEvent(peerID))

	g.dropRoomIfEmpty(room)
}
