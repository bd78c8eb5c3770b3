package domain

import "github.com/google/uuid"

// ChatMessage is a text message in a room. Stored alongside room metadata,
// trimmed to a bounded history.
type ChatMessage struct {
	ID        string `json:"id"`
	RoomID    RoomID `json:"roomId"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

func NewChatMessage(roomID RoomID, sender, text string, ts int64) *ChatMessage {
	return &ChatMessage{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Sender:    sender,
		Text:      text,
		Timestamp: ts,
	}
}
