package app

import (
	"context"
	"testing"
	"time"

	"github.com/iftarcode/sfu-server/internal/store"
)

func newTestDirectory(start time.Time) (*Directory, *time.Time) {
	d := NewDirectory(store.NewMemory(), 6*time.Hour, time.Second, 3)
	now := start
	d.now = func() time.Time { return now }
	return d, &now
}

func TestRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	d, now := newTestDirectory(time.Now())

	room, err := d.CreateRoom(ctx, "Fathima", "Kochi", "India", "18:32")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(room.Code) != 6 {
		t.Errorf("room code %q, want 6 characters", room.Code)
	}

	got, err := d.GetRoom(ctx, room.Code)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if got.HostName != "Fathima" || got.MaghribTime != "18:32" {
		t.Errorf("GetRoom = %+v", got)
	}

	if _, err := d.GetRoom(ctx, "ZZZZZZ"); err != ErrRoomNotFound {
		t.Errorf("GetRoom unknown code: got %v, want ErrRoomNotFound", err)
	}

	// Read-side expiry: 6h+ later the room reads as gone regardless of
	// whether the backend garbage-collected it.
	*now = now.Add(7 * time.Hour)
	if _, err := d.GetRoom(ctx, room.Code); err != ErrRoomNotFound {
		t.Errorf("GetRoom after expiry: got %v, want ErrRoomNotFound", err)
	}
}

func TestParticipantNameUniqueness(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDirectory(time.Unix(1000, 0))

	room, err := d.CreateRoom(ctx, "Hamza", "Calicut", "India", "18:40")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := d.AddParticipant(ctx, room, "Amina"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if _, err := d.AddParticipant(ctx, room, "amina"); err != ErrNameTaken {
		t.Fatalf("AddParticipant duplicate: got %v, want ErrNameTaken", err)
	}
	list, err := d.Participants(ctx, room.ID)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Participants = %d entries, want 1", len(list))
	}
}

func TestChatRateLimitSharedBucket(t *testing.T) {
	ctx := context.Background()
	d, now := newTestDirectory(time.Unix(1000, 0))

	room, err := d.CreateRoom(ctx, "Hamza", "Calicut", "India", "18:40")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := d.AddMessage(ctx, room, "Amina", "salaam"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	// The bucket keys on display name: a second message under the same
	// name inside the interval is limited, whoever sent it.
	if _, err := d.AddMessage(ctx, room, "Amina", "again"); err != ErrRateLimited {
		t.Fatalf("AddMessage within interval: got %v, want ErrRateLimited", err)
	}
	if _, err := d.AddMessage(ctx, room, "Bilal", "different sender"); err != nil {
		t.Fatalf("AddMessage other sender: %v", err)
	}

	*now = now.Add(2 * time.Second)
	if _, err := d.AddMessage(ctx, room, "Amina", "later"); err != nil {
		t.Fatalf("AddMessage after interval: %v", err)
	}
}

func TestChatHistoryTrimmed(t *testing.T) {
	ctx := context.Background()
	d, now := newTestDirectory(time.Unix(1000, 0))

	room, err := d.CreateRoom(ctx, "Hamza", "Calicut", "India", "18:40")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	for i, text := range []string{"one", "two", "three", "four", "five"} {
		*now = now.Add(2 * time.Second)
		if _, err := d.AddMessage(ctx, room, "Amina", text); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}
	msgs, err := d.Messages(ctx, room.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	// History limit is 3 in the test directory.
	if len(msgs) != 3 || msgs[0].Text != "three" || msgs[2].Text != "five" {
		t.Fatalf("Messages = %d entries starting %q, want 3 starting with three", len(msgs), msgs[0].Text)
	}
}
