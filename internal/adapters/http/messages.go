package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iftarcode/sfu-server/internal/app"
	"github.com/iftarcode/sfu-server/internal/domain"
)

type postMessageRequest struct {
	Sender string `json:"sender" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

func (a *API) postMessage(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sender or text"})
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

	msg, err := a.directory.AddMessage(c.Request.Context(), room, req.Sender, req.Text)
	if errors.Is(err, app.ErrRateLimited) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "slow down"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "send failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (a *API) listMessages(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	room, err := a.directory.GetRoom(c.Request.Context(), code)
	if errors.Is(err, app.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	msgs, err := a.directory.Messages(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
