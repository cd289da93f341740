package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/store"
)

func newTestManager(t *testing.T, admins ...string) (*Manager, store.DataStore) {
	t.Helper()
	db, err := store.NewMemPebbleStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := Load(context.Background(), db, admins, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return m, db
}

func TestSeedAdmins(t *testing.T) {
	m, db := newTestManager(t, "root", " ", "root")

	if !m.IsAdmin("root") {
		t.Fatal("expected root to be admin")
	}
	if m.IsAdmin("alice") {
		t.Fatal("alice should not be admin")
	}

	reloaded, err := Load(context.Background(), db, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	snap := reloaded.Snapshot()
	if len(snap.Admins) != 1 || snap.Admins[0] != "root" {
		t.Fatalf("seeded admins not persisted: %v", snap.Admins)
	}
}

func TestBlockUnblockPersists(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()

	if err := m.Block(ctx, "troll"); err != nil {
		t.Fatal(err)
	}
	if err := m.Block(ctx, "troll"); err != nil {
		t.Fatal(err)
	}
	if !m.IsBlocked("troll") {
		t.Fatal("expected troll blocked")
	}
	if err := m.Block(ctx, "  "); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	reloaded, _ := Load(ctx, db, nil, zerolog.Nop())
	if !reloaded.IsBlocked("troll") {
		t.Fatal("block not persisted")
	}
	if n := len(reloaded.Snapshot().BlockedUsers); n != 1 {
		t.Fatalf("expected a single entry, got %d", n)
	}

	if err := m.Unblock(ctx, "troll"); err != nil {
		t.Fatal(err)
	}
	if m.IsBlocked("troll") {
		t.Fatal("expected troll unblocked")
	}
}

func TestFilterMasksWords(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	m.AddFilteredWord(ctx, "darn")
	m.AddFilteredWord(ctx, "바보")

	got := m.Filter("darn it, 바보야, darn")
	if got != "**** it, **야, ****" {
		t.Fatalf("unexpected filtered text %q", got)
	}

	m.RemoveFilteredWord(ctx, "darn")
	if got := m.Filter("darn"); got != "darn" {
		t.Fatalf("expected word no longer filtered, got %q", got)
	}
}

func TestRemoveTrimsValue(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	if err := m.AddFilteredWord(ctx, "  darn "); err != nil {
		t.Fatal(err)
	}
	if err := m.Block(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	if err := m.RemoveFilteredWord(ctx, " darn\t"); err != nil {
		t.Fatal(err)
	}
	if err := m.Unblock(ctx, " bob "); err != nil {
		t.Fatal(err)
	}
	snap := m.Snapshot()
	if len(snap.FilteredWords) != 0 || len(snap.BlockedUsers) != 0 {
		t.Fatalf("padded values not removed: %+v", snap)
	}

	if err := m.RemoveFilteredWord(ctx, "   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestRenameUser(t *testing.T) {
	m, _ := newTestManager(t, "alice")
	ctx := context.Background()
	m.Block(ctx, "bob")

	if err := m.RenameUser(ctx, "alice", "alicia"); err != nil {
		t.Fatal(err)
	}
	if m.IsAdmin("alice") || !m.IsAdmin("alicia") {
		t.Fatal("admin entry did not follow rename")
	}

	m.RenameUser(ctx, "bob", "robert")
	if !m.IsBlocked("robert") {
		t.Fatal("block did not follow rename")
	}
}
