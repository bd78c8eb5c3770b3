package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iftarcode/sfu-server/internal/app"
	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/signal"
)

type postSignalRequest struct {
	From    string          `json:"from" binding:"required"`
	To      string          `json:"to" binding:"required"`
	Kind    signal.Kind     `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// postSignal is the pull-mode fallback for clients without a websocket:
// the message lands in the room's relay log with a server timestamp.
func (a *API) postSignal(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	var req postSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing from, to or type"})
		return
	}

	room, err := a.directory.GetRoom(c.Request.Context(), code)
	if errors.Is(err, app.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	msg, err := a.relay.Send(c.Request.Context(), room.ID, req.From, req.To, req.Kind, req.Payload)
	if errors.Is(err, signal.ErrInvalidKind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal type"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "relay failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": msg.ID, "timestamp": msg.CreatedAt})
}

// pollSignals returns unexpired messages addressed to peerId newer than
// the since cursor. Reads are non-destructive; the client advances its
// own cursor.
func (a *API) pollSignals(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	peerID := c.Query("peerId")
	if peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "peerId required"})
		return
	}
	var since int64
	if s := c.Query("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be unix millis"})
			return
		}
		since = v
	}

	room, err := a.directory.GetRoom(c.Request.Context(), code)
	if errors.Is(err, app.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	msgs, err := a.relay.Poll(c.Request.Context(), room.ID, peerID, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "poll failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": msgs})
}
