package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/app"
)

// envelope is the frame shape in both directions: requests carry a
// client-chosen requestId that the matching response echoes back.
type envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "adapters.ws").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "adapters.ws").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, peerID app.PeerID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "adapters.ws").Str("peer", string(peerID)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "adapters.ws").Str("peer", string(peerID)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "adapters.ws").Str("peer", string(peerID)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(ctx, peerID, c, data)
		}
	}
}

func (ctl *Controller) handleFrame(ctx context.Context, peerID app.PeerID, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.sendJSON(c, envelope{Type: "pong", RequestID: env.RequestID})
	case "joinRoom":
		ctl.handleJoin(ctx, peerID, c, env)
	case "getRouterRtpCapabilities":
		ctl.handleCapabilities(peerID, c, env)
	case "createTransport":
		ctl.handleCreateTransport(ctx, peerID, c, env)
	case "connectTransport":
		ctl.handleConnectTransport(ctx, peerID, c, env)
	case "produce":
		ctl.handleProduce(ctx, peerID, c, env)
	case "consume":
		ctl.handleConsume(ctx, peerID, c, env)
	case "resumeConsumer":
		ctl.handleResumeConsumer(peerID, c, env)
	case "getProducers":
		ctl.handleGetProducers(peerID, c, env)
	case "leaveRoom":
		ctl.handleLeave(ctx, peerID, c, env)
	default:
		log.Warn().Str("module", "adapters.ws").Str("type", env.Type).Msg("unknown frame")
		ctl.sendError(c, env, "unknown request type")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "adapters.ws").Msg("send dropped")
	}
}

// respond answers a request frame, echoing its type and requestId.
func (ctl *Controller) respond(c *wsConn, env envelope, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("respond marshal")
		return
	}
	ctl.sendJSON(c, envelope{Type: env.Type, RequestID: env.RequestID, Data: b})
}

func (ctl *Controller) sendError(c *wsConn, env envelope, msg string) {
	ctl.sendJSON(c, struct {
		Type      string `json:"type"`
		RequestID string `json:"requestId,omitempty"`
		Error     string `json:"error"`
	}{Type: "error", RequestID: env.RequestID, Error: msg})
}
