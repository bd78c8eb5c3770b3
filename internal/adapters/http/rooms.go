package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/app"
	"github.com/iftarcode/sfu-server/internal/config"
	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/signal"
)

// API holds the REST handler dependencies.
type API struct {
	directory *app.Directory
	relay     *signal.Relay
	secret    string
	turn      config.TURNConfig
	client    *http.Client
}

func NewAPI(directory *app.Directory, relay *signal.Relay, secret string, turn config.TURNConfig) *API {
	return &API{
		directory: directory,
		relay:     relay,
		secret:    secret,
		turn:      turn,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type createRoomRequest struct {
	HostName    string `json:"hostName" binding:"required"`
	City        string `json:"city"`
	Country     string `json:"country"`
	MaghribTime string `json:"maghribTime"`
}

// createRoom makes a room and hands the creator a host token scoped to
// its code; only the token holder may delete the room later.
func (a *API) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid hostName"})
		return
	}

	room, err := a.directory.CreateRoom(c.Request.Context(), req.HostName, req.City, req.Country, req.MaghribTime)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	token, err := mintHostToken(a.secret, room.Code, 6*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room, "hostToken": token})
}

func (a *API) listRooms(c *gin.Context) {
	rooms, err := a.directory.ListRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (a *API) getRoom(c *gin.Context) {
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
	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (a *API) deleteRoom(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	if err := verifyHostToken(a.secret, bearerToken(c), code); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "host token required"})
		return
	}
	err := a.directory.DeleteRoom(c.Request.Context(), code)
	if errors.Is(err, app.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type joinRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

func (a *API) joinRoom(c *gin.Context) {
	code := domain.NormalizeCode(c.Param("code"))
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
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

	participant, err := a.directory.AddParticipant(c.Request.Context(), room, req.Name)
	switch {
	case errors.Is(err, app.ErrNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "name already taken"})
		return
	case errors.Is(err, domain.ErrNameEmpty), errors.Is(err, domain.ErrNameTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "join failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "participant": participant})
}

func (a *API) listParticipants(c *gin.Context) {
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
	list, err := a.directory.Participants(c.Request.Context(), room.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if list == nil {
		list = []domain.Participant{}
	}
	c.JSON(http.StatusOK, gin.H{"participants": list})
}
