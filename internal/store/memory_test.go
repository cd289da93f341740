package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eldtechnologies/chatrooms/internal/models"
)

func TestMemoryStoreMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		msg := &models.Message{RoomID: "r1", From: "alice", Body: "hi", Timestamp: base + int64(i)}
		if err := s.AddMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
		if msg.ID == "" {
			t.Fatal("expected message ID to be assigned")
		}
	}
	if err := s.AddMessage(ctx, &models.Message{RoomID: "r2", From: "bob", Body: "other"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRoomMessages(ctx, "r1", 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Timestamp != base+4 || got[2].Timestamp != base+2 {
		t.Fatalf("messages not newest first: %+v", got)
	}

	older, err := s.GetRoomMessages(ctx, "r1", 10, got[2].Timestamp)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 2 || older[0].Timestamp != base+1 {
		t.Fatalf("unexpected page before cursor: %+v", older)
	}

	if err := s.DeleteRoomMessages(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetRoomMessages(ctx, "r1", 10, 0)
	if len(got) != 0 {
		t.Fatalf("expected history to be dropped, got %d", len(got))
	}
}

func TestMemoryStoreExpiredMessagesHidden(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	old := time.Now().Add(-25 * time.Hour).UnixMilli()
	s.AddMessage(ctx, &models.Message{RoomID: "r1", Body: "old", Timestamp: old})
	s.AddMessage(ctx, &models.Message{RoomID: "r1", Body: "new"})

	got, _ := s.GetRoomMessages(ctx, "r1", 10, 0)
	if len(got) != 1 || got[0].Body != "new" {
		t.Fatalf("expected only the fresh message, got %+v", got)
	}
}

func TestMemoryStoreSessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetSession(ctx, "nope", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s.PutSession(ctx, "tok", "alice", time.Minute)
	user, err := s.GetSession(ctx, "tok", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if user != "alice" {
		t.Fatalf("expected alice, got %q", user)
	}

	s.PutSession(ctx, "short", "bob", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, err := s.GetSession(ctx, "short", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}

	s.DeleteSession(ctx, "tok")
	if _, err := s.GetSession(ctx, "tok", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted session, got %v", err)
	}
}

func TestMemoryStorePresence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	s.Touch(ctx, "alice", now)
	s.Touch(ctx, "bob", now.Add(-10*time.Minute))
	s.Touch(ctx, "carol", now.Add(-time.Minute))

	active, _ := s.ActiveUsers(ctx, now.Add(-5*time.Minute))
	if len(active) != 2 || active[0] != "alice" || active[1] != "carol" {
		t.Fatalf("unexpected active users %v", active)
	}

	removed, _ := s.PrunePresence(ctx, now.Add(-5*time.Minute))
	if removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}

	s.RemovePresence(ctx, "alice")
	active, _ = s.ActiveUsers(ctx, time.Time{})
	if len(active) != 1 || active[0] != "carol" {
		t.Fatalf("unexpected active users %v", active)
	}
}

func TestMemoryStoreWarningsAndWelcome(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementWarnings(ctx, "alice", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Fatalf("expected %d, got %d", want, n)
		}
	}
	s.ResetWarnings(ctx, "alice")
	if n, _ := s.IncrementWarnings(ctx, "alice", time.Hour); n != 1 {
		t.Fatalf("expected reset counter, got %d", n)
	}

	first, _ := s.MarkWelcomed(ctx, "alice")
	second, _ := s.MarkWelcomed(ctx, "alice")
	if !first || second {
		t.Fatalf("expected welcome once, got %v then %v", first, second)
	}
}
