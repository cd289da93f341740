package chatbot

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/store"
)

type recordingBlocker struct {
	blocked []string
}

func (r *recordingBlocker) Block(ctx context.Context, username string) error {
	r.blocked = append(r.blocked, username)
	return nil
}

func TestScan(t *testing.T) {
	words := []string{"idiot", "shut up"}

	if got := Scan("You IDIOT", words); len(got) != 1 || got[0] != "idiot" {
		t.Fatalf("expected case-insensitive match, got %v", got)
	}
	if got := Scan("please Shut Up, idiot", words); len(got) != 2 {
		t.Fatalf("expected both words, got %v", got)
	}
	if got := Scan("hello there", words); len(got) != 0 {
		t.Fatalf("expected no match, got %v", got)
	}
}

func TestWelcomeOnce(t *testing.T) {
	ctx := context.Background()
	eph := store.NewMemoryStore()
	bot := New(Config{Name: "Greeter"}, eph, &recordingBlocker{}, zerolog.Nop())

	msg, err := bot.Welcome(ctx, "room1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || msg.From != "Greeter" || !msg.Bot || !strings.Contains(msg.Body, "alice") {
		t.Fatalf("unexpected welcome %+v", msg)
	}

	again, err := bot.Welcome(ctx, "room2", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Fatal("alice should only be welcomed once")
	}

	history, _ := eph.GetRoomMessages(ctx, "room1", 10, 0)
	if len(history) != 1 {
		t.Fatalf("expected welcome stored, got %d messages", len(history))
	}
}

func TestInspectEscalates(t *testing.T) {
	ctx := context.Background()
	eph := store.NewMemoryStore()
	blocker := &recordingBlocker{}
	bot := New(Config{Words: []string{"idiot"}, BlockAfter: 3}, eph, blocker, zerolog.Nop())

	clean, err := bot.Inspect(ctx, "r", "troll", "good morning")
	if err != nil {
		t.Fatal(err)
	}
	if clean.Harmful {
		t.Fatal("clean message flagged")
	}

	levels := []struct {
		blocked bool
		marker  string
	}{
		{false, "respectful"},
		{false, "final warning"},
		{true, "blocked"},
	}
	for i, want := range levels {
		v, err := bot.Inspect(ctx, "r", "troll", "you idiot")
		if err != nil {
			t.Fatal(err)
		}
		if !v.Harmful || v.Level != int64(i+1) {
			t.Fatalf("step %d: unexpected verdict %+v", i, v)
		}
		if v.Blocked != want.blocked {
			t.Fatalf("step %d: expected blocked=%v", i, want.blocked)
		}
		if v.Reply == nil || !strings.Contains(v.Reply.Body, want.marker) {
			t.Fatalf("step %d: unexpected reply %+v", i, v.Reply)
		}
	}

	if len(blocker.blocked) != 1 || blocker.blocked[0] != "troll" {
		t.Fatalf("expected troll blocked once, got %v", blocker.blocked)
	}
}
