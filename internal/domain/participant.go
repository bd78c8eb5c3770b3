package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxNameLen = 36

var (
	ErrNameEmpty   = errors.New("name empty")
	ErrNameTooLong = errors.New("name too long")
)

type ParticipantID string

// Participant is a person who joined a room through the REST surface.
// Display-name uniqueness within a room is checked at join time.
type Participant struct {
	ID       ParticipantID `json:"id"`
	RoomID   RoomID        `json:"roomId"`
	Name     string        `json:"name"`
	JoinedAt time.Time     `json:"joinedAt"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(roomID RoomID, name string) (*Participant, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &Participant{
		ID:       ParticipantID(uuid.NewString()),
		RoomID:   roomID,
		Name:     name,
		JoinedAt: time.Now(),
	}, nil
}
