package app

import (
	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/media"
)

// Notifier delivers server-initiated events to peers over whatever push
// transport is live for them. Delivery is best effort: a peer without a
// live connection simply misses the event.
type Notifier interface {
	Broadcast(roomID domain.RoomID, exclude PeerID, v any)
	Unicast(peerID PeerID, v any)
}

type NewPeerEvent struct {
	Type        string `json:"type"`
	PeerID      PeerID `json:"peerId"`
	DisplayName string `json:"peerName"`
}

type NewProducerEvent struct {
	Type        string     `json:"type"`
	ProducerID  string     `json:"producerId"`
	PeerID      PeerID     `json:"peerId"`
	DisplayName string     `json:"peerName"`
	Kind        media.Kind `json:"kind"`
}

type PeerLeftEvent struct {
	Type   string `json:"type"`
	PeerID PeerID `json:"peerId"`
}

type ConsumerClosedEvent struct {
	Type       string `json:"type"`
	ConsumerID string `json:"consumerId"`
}

func newPeerEvent(p *Peer) NewPeerEvent {
	return NewPeerEvent{Type: "newPeer", PeerID: p.ID, DisplayName: p.DisplayName}
}

func newProducerEvent(p *Peer, producerID string, kind media.Kind) NewProducerEvent {
	return NewProducerEvent{
		Type:        "newProducer",
		ProducerID:  producerID,
		PeerID:      p.ID,
		DisplayName: p.DisplayName,
		Kind:        kind,
	}
}

func peerLeftEvent(id PeerID) PeerLeftEvent {
	return PeerLeftEvent{Type: "peerLeft", PeerID: id}
}

func consumerClosedEvent(consumerID string) ConsumerClosedEvent {
	return ConsumerClosedEvent{Type: "consumerClosed", ConsumerID: consumerID}
}
