package ws

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/app"
	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/media"
)

func (ctl *Controller) handleJoin(ctx context.Context, peerID app.PeerID, c *wsConn, env envelope) {
	var p struct {
		RoomID      string `json:"roomId"`
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" {
		ctl.sendError(c, env, "bad payload")
		return
	}
	roomID := domain.RoomID(p.RoomID)

	res, err := ctl.registry.JoinRoom(ctx, roomID, peerID, p.DisplayName)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Str("room", p.RoomID).Msg("join")
		ctl.sendError(c, env, err.Error())
		return
	}

	ctl.push.Bind(peerID, roomID, c)
	c.bindRoom(roomID)
	ctl.respond(c, env, res)
}

func (ctl *Controller) handleCapabilities(peerID app.PeerID, c *wsConn, env envelope) {
	roomID, joined := c.room()
	if !joined {
		ctl.sendError(c, env, "not joined")
		return
	}
	caps, err := ctl.registry.Capabilities(roomID)
	if err != nil {
		ctl.sendError(c, env, err.Error())
		return
	}
	ctl.respond(c, env, caps)
}

func (ctl *Controller) handleCreateTransport(ctx context.Context, peerID app.PeerID, c *wsConn, env envelope) {
	roomID, joined := c.room()
	if !joined {
		ctl.sendError(c, env, "not joined")
		return
	}
	opts, err := ctl.registry.CreateTransport(ctx, roomID, peerID)
	if err != nil {
		ctl.sendError(c, env, err.Error())
		return
	}
	ctl.respond(c, env, opts)
}

func (ctl *Controller) handleConnectTransport(ctx context.Context, peerID app.PeerID, c *wsConn, env envelope) {
	// parameters is the opaque blob the engine defined in TransportOptions'
	// counterpart: client ICE credentials plus DTLS role and fingerprints.
	var p struct {
		TransportID string          `json:"transportId"`
		Parameters  json.RawMessage `json:"parameters"`
	}
	roomID, joined := c.room()
	if !joined {
		ctl.sendError(c, env, "not joined")
		return
	}
	if err := json.Unmarshal(env.Data, &p); err != nil || p.TransportID == "" {
		ctl.sendError(c, env, "bad payload")
		return
	}
	if err := ctl.registry.ConnectTransport(ctx, roomID, peerID, p.TransportID, p.Parameters); err != nil {
		ctl.sendError(c, env, err.Error())
		return
	}
	ctl.respond(c, env, struct {
		Connected bool `json:"connected"`
	}{true})
}

func (ctl *Controller) handleProduce(ctx context.Context, peerID app.PeerID, c *wsConn, env envelope) {
	var p struct {
		TransportID   string          `json:"transportId"`
		Kind          media.Kind      `json:"kind"`
		RTPParameters json.RawMessage `json:"rtpParameters"`
	}
	roomID, joined := c.room()
	if !joined {
		ctl.sendError(c, env, "not joined")
		return
	}
	if err := json.Unmarshal(env.Data, &p); err != nil || p.TransportID == "" {
		ctl.sendError(c, env, "bad payload")
		return
	}
	producerID, err := ctl.registry.Produce(ctx, roomID, peerID, p.TransportID, p.Kind, p.RTPParameters)
	if err != nil {
		ctl.sendError(c, env, err.Error())
		return
	}
	ctl.respond(c, env, struct {
		ProducerID string `json:"producerId"`
	}{producerID})
}

func (ctl *Controller) handleConsume(ctx context.Context, peerID app.PeerID, c *wsConn, env envelope) {
	var p struct {
		TransportID     string                `json:"transportId"`
		ProducerID      string                `json:"producerId"`
		RTPCapabilities media.RTPCapabilities `json:"rtpCapabilities"`
	}
	roomID, joined := c.room()
	if !joined {
		ctl.sendError(c, env, "not joined")
		return
	}
	if err := json.Unmarshal(env.Data, &p); err != nil || p.TransportID == "" || p.ProducerID == "" {
		ctl.sendError(c, env, "bad payload")
		return
	}
	res, err := ctl.registry.Consume(ctx, roomID, peerID, p.TransportID, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		ctl.sendError(c, env, err.Error())
		return
	}
	ctl.respond(c, env, res)
}

func (ctl *Controller) handleResumeConsumer(peerID app.PeerID, c *wsConn, env envelope) {
	var p struct {
		ConsumerID string `json:"consumerId"`
	}
	roomID, joined := c.room()
	if !joined {
		ctl.sendError(c, env, "not joined")
		return
	}
	if err := json.Unmarshal(env.Data, &p); err != nil || p.ConsumerID == "" {
		ctl.sendError(c, env, "bad payload")
		return
	}
	if err := ctl.registry.ResumeConsumer(roomID, peerID, p.ConsumerID); err != nil {
		ctl.sendError(c, env, err.Error())
		return
	}
	ctl.respond(c, env, struct {
		Resumed bool `json:"resumed"`
	}{true})
}

func (ctl *Controller) handleGetProducers(peerID app.PeerID, c *wsConn, env envelope) {
	roomID, joined := c.room()
	if !joined {
		ctl.sendError(c, env, "not joined")
		return
	}
	producers := ctl.registry.Producers(roomID, peerID)
	if producers == nil {
		producers = []app.ProducerInfo{}
	}
	ctl.respond(c, env, producers)
}

// handleLeave tears the peer down but keeps the connection open so the
// client can join another room.
func (ctl *Controller) handleLeave(ctx context.Context, peerID app.PeerID, c *wsConn, env envelope) {
	roomID, joined := c.room()
	if !joined {
		ctl.sendError(c, env, "not joined")
		return
	}
	ctl.push.Unbind(peerID)
	c.unbindRoom()
	ctl.registry.RemovePeer(ctx, roomID, peerID)
	ctl.respond(c, env, struct {
		Left bool `json:"left"`
	}{true})
}
