// Package domain contains entities without logic, just meta-data.
package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	RoomID   string
	RoomCode string
)

const (
	roomCodeLength = 6
	// No ambiguous characters (0/O, 1/I).
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Room is the durable metadata of a gathering room. The live media state
// (router, peers, transports) is owned by the app layer and never stored.
type Room struct {
	ID          RoomID    `json:"id"`
	Code        RoomCode  `json:"code"`
	HostName    string    `json:"hostName"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	MaghribTime string    `json:"maghribTime"` // HH:MM
	CreatedAt   time.Time `json:"createdAt"`
}

func NewRoom(hostName, city, country, maghribTime string) *Room {
	return &Room{
		ID:          RoomID(uuid.NewString()),
		Code:        NewRoomCode(),
		HostName:    hostName,
		City:        city,
		Country:     country,
		MaghribTime: maghribTime,
		CreatedAt:   time.Now(),
	}
}

// Expired reports whether the room has outlived its ttl at the given instant.
func (r *Room) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

func NewRoomCode() RoomCode {
	var b strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < roomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is unrecoverable for code generation
			panic(err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return RoomCode(b.String())
}

// NormalizeCode upper-cases a user supplied room code.
func NormalizeCode(code string) RoomCode {
	return RoomCode(strings.ToUpper(strings.TrimSpace(code)))
}
