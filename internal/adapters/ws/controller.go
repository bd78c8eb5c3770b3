// Package ws is the live signaling adapter: one websocket per peer,
// carrying request/response frames for session operations and pushed
// events from the room registry.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/app"
	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/signal"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	registry *app.Registry
	push     *signal.Push
}

func NewController(registry *app.Registry, push *signal.Push) *Controller {
	return &Controller{registry: registry, push: push}
}

// wsConn wraps one websocket with a bounded send queue. TrySend never
// blocks: a full queue means the client is too slow and the frame is
// dropped.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	roomID domain.RoomID
	joined bool
}

func (c *wsConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *wsConn) bindRoom(roomID domain.RoomID) {
	c.mu.Lock()
	c.roomID = roomID
	c.joined = true
	c.mu.Unlock()
}

func (c *wsConn) unbindRoom() {
	c.mu.Lock()
	c.roomID = ""
	c.joined = false
	c.mu.Unlock()
}

func (c *wsConn) room() (domain.RoomID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.joined
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSession upgrades the request and runs the io pumps until the
// peer disconnects. Disconnecting while joined tears the peer's media
// graph down.
func (ctl *Controller) HandleSession(ctx context.Context, c *gin.Context) {
	peerID := app.PeerID(c.GetString("client_token"))
	log.Info().Str("module", "adapters.ws").Str("peer", string(peerID)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	ctl.readPump(ctx, peerID, conn)
	cancel()

	if roomID, joined := conn.room(); joined {
		ctl.push.Unbind(peerID)
		ctl.registry.RemovePeer(context.Background(), roomID, peerID)
	}
}
