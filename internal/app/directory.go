package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/store"
)

var (
	ErrNameTaken   = errors.New("name already taken in this room")
	ErrRateLimited = errors.New("rate limited")
)

// Directory is the durable side of rooms: metadata, participant roster and
// chat history, all behind the injected store strategy.
type Directory struct {
	store store.Store

	roomTTL      time.Duration
	rateInterval time.Duration
	historyLimit int

	now func() time.Time
}

func NewDirectory(s store.Store, roomTTL, rateInterval time.Duration, historyLimit int) *Directory {
	return &Directory{
		store:        s,
		roomTTL:      roomTTL,
		rateInterval: rateInterval,
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

const roomIndexKey = "rooms:index"

func roomKey(code domain.RoomCode) string     { return "room:" + string(code) }
func participantsKey(id domain.RoomID) string { return "participants:" + string(id) }
func messagesKey(id domain.RoomID) string     { return "messages:" + string(id) }

func rateKey(id domain.RoomID, sender string) string {
	return fmt.Sprintf("ratelimit:%s:%s", id, sender)
}

// CreateRoom stores a new room under its code for the configured ttl.
func (d *Directory) CreateRoom(ctx context.Context, hostName, city, country, maghribTime string) (*domain.Room, error) {
	room := domain.NewRoom(hostName, city, country, maghribTime)
	b, err := json.Marshal(room)
	if err != nil {
		return nil, err
	}
	if err := d.store.Put(ctx, roomKey(room.Code), b, d.roomTTL); err != nil {
		return nil, err
	}
	if err := d.store.ListAppend(ctx, roomIndexKey, []byte(room.Code), d.roomTTL); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "app.directory").
		Str("code", string(room.Code)).
		Str("host", hostName).
		Msg("room created")
	return room, nil
}

// GetRoom resolves a room by code. Expiry is checked against the creation
// timestamp on every read so all store backends behave identically; an
// expired room is cleaned up and reported as not found.
func (d *Directory) GetRoom(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	b, err := d.store.Get(ctx, roomKey(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var room domain.Room
	if err := json.Unmarshal(b, &room); err != nil {
		return nil, err
	}
	if room.Expired(d.now(), d.roomTTL) {
		d.cleanupRoom(ctx, &room)
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// ListRooms resolves every live room on the index. Codes whose room has
// expired or been deleted stay on the index until its TTL reaps them;
// listing just skips them.
func (d *Directory) ListRooms(ctx context.Context) ([]domain.Room, error) {
	raw, err := d.store.ListRange(ctx, roomIndexKey)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Room, 0, len(raw))
	seen := make(map[domain.RoomCode]struct{}, len(raw))
	for _, b := range raw {
		code := domain.RoomCode(b)
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		room, err := d.GetRoom(ctx, code)
		if errors.Is(err, ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *room)
	}
	return out, nil
}

// DeleteRoom removes the room and everything hanging off it.
func (d *Directory) DeleteRoom(ctx context.Context, code domain.RoomCode) error {
	room, err := d.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	d.cleanupRoom(ctx, room)
	return nil
}

func (d *Directory) cleanupRoom(ctx context.Context, room *domain.Room) {
	_ = d.store.Delete(ctx, roomKey(room.Code))
	_ = d.store.Delete(ctx, participantsKey(room.ID))
	_ = d.store.Delete(ctx, messagesKey(room.ID))
	_ = d.store.Delete(ctx, "signals:"+string(room.ID))
}

// AddParticipant registers a display name in the room, rejecting names
// already taken (case-insensitive).
func (d *Directory) AddParticipant(ctx context.Context, room *domain.Room, name string) (*domain.Participant, error) {
	existing, err := d.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if strings.EqualFold(p.Name, name) {
			return nil, ErrNameTaken
		}
	}
	participant, err := domain.NewParticipant(room.ID, name)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(participant)
	if err != nil {
		return nil, err
	}
	if err := d.store.ListAppend(ctx, participantsKey(room.ID), b, d.roomTTL); err != nil {
		return nil, err
	}
	return participant, nil
}

func (d *Directory) Participants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	raw, err := d.store.ListRange(ctx, participantsKey(roomID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(raw))
	for _, b := range raw {
		var p domain.Participant
		if err := json.Unmarshal(b, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// AddMessage appends a chat message, enforcing one message per sender per
// rate interval. The bucket is keyed on (room, sender display name), so
// two participants sharing a display name share a bucket. The check-then-
// set below is not atomic across server instances sharing an external
// backend; two instances can admit the same sender in the same window.
func (d *Directory) AddMessage(ctx context.Context, room *domain.Room, sender, text string) (*domain.ChatMessage, error) {
	key := rateKey(room.ID, sender)
	if _, err := d.store.Get(ctx, key); err == nil {
		return nil, ErrRateLimited
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := d.store.Put(ctx, key, []byte{'1'}, d.rateInterval); err != nil {
		return nil, err
	}

	msg := domain.NewChatMessage(room.ID, sender, text, d.now().UnixMilli())
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := d.store.ListAppend(ctx, messagesKey(room.ID), b, d.roomTTL); err != nil {
		return nil, err
	}
	if err := d.store.ListTrim(ctx, messagesKey(room.ID), d.historyLimit); err != nil {
		return nil, err
	}
	return msg, nil
}

func (d *Directory) Messages(ctx context.Context, roomID domain.RoomID) ([]domain.ChatMessage, error) {
	raw, err := d.store.ListRange(ctx, messagesKey(roomID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, b := range raw {
		var m domain.ChatMessage
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
