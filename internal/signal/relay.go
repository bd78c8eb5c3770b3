// Package signal relays connection-negotiation payloads between peers.
// Two delivery strategies share one contract: deliver each message to its
// addressed recipient within a bounded time window. Push hands messages to
// a live connection; pull appends them to a store-backed log that peers
// poll with a cursor.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iftarcode/sfu-server/internal/domain"
	"github.com/iftarcode/sfu-server/internal/store"
)

// DefaultTTL bounds how long a relayed message stays visible to pollers.
const DefaultTTL = 60 * time.Second

type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
)

func (k Kind) Valid() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate:
		return true
	}
	return false
}

var ErrInvalidKind = fmt.Errorf("signal: invalid kind")

// Message is one negotiation payload addressed from one peer to another.
// The payload is opaque here; it is validated only as far as the kind
// discriminant at the relay boundary.
type Message struct {
	ID        string          `json:"id"`
	RoomID    domain.RoomID   `json:"roomId"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Kind      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"timestamp"` // unix millis, server-assigned
}

// Relay is the pull-mode strategy. Reads are non-destructive: the caller
// advances its own cursor, and handlers must stay idempotent against
// duplicate ICE candidates.
type Relay struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewRelay(s store.Store, ttl time.Duration) *Relay {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Relay{store: s, ttl: ttl, now: time.Now}
}

func signalKey(roomID domain.RoomID) string {
	return "signals:" + string(roomID)
}

// Send appends a message to the room's relay log with a server-assigned
// timestamp and returns it.
func (r *Relay) Send(ctx context.Context, roomID domain.RoomID, from, to string, kind Kind, payload json.RawMessage) (Message, error) {
	if !kind.Valid() {
		return Message{}, ErrInvalidKind
	}
	msg := Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		From:      from,
		To:        to,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: r.now().UnixMilli(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	if err := r.store.ListAppend(ctx, signalKey(roomID), b, r.ttl); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Poll returns every unexpired message addressed to peerID with
// CreatedAt > since, in ascending timestamp order. Polling twice with the
// same cursor returns the same messages.
func (r *Relay) Poll(ctx context.Context, roomID domain.RoomID, peerID string, since int64) ([]Message, error) {
	raw, err := r.store.ListRange(ctx, signalKey(roomID))
	if err != nil {
		return nil, err
	}
	cutoff := r.now().Add(-r.ttl).UnixMilli()

	out := make([]Message, 0, len(raw))
	for _, b := range raw {
		var msg Message
		if err := json.Unmarshal(b, &msg); err != nil {
			// A corrupt entry must not poison the whole log.
			continue
		}
		if msg.To != peerID || msg.CreatedAt <= since || msg.CreatedAt <= cutoff {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}
