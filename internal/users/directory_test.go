package users

import (
	"context"
	"errors"
	"testing"

	"github.com/eldtechnologies/chatrooms/internal/models"
	"github.com/eldtechnologies/chatrooms/internal/store"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	db, err := store.NewMemPebbleStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDirectory(db)
}

func TestRegisterIsIdempotent(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	created, err := d.Register(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected alice to be created")
	}

	created, err = d.Register(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second register should not create")
	}

	if n, _ := d.Count(ctx); n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}
}

func TestProfileDefaults(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if _, err := d.GetProfile(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	d.Register(ctx, "alice")
	p, err := d.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Image != models.DefaultImage || p.Status != models.StatusOffline || p.LastSeen != nil {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

func TestSetStatus(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	d.Register(ctx, "alice")

	p, err := d.SetStatus(ctx, "alice", models.StatusOnline)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.StatusOnline || p.LastSeen == nil {
		t.Fatalf("unexpected profile %+v", p)
	}

	if _, err := d.SetStatus(ctx, "alice", "dancing"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	p, _ = d.GetProfile(ctx, "alice")
	if p.Status != models.StatusOnline {
		t.Fatalf("status not persisted: %+v", p)
	}
}

func TestRename(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	d.Register(ctx, "alice")
	d.Register(ctx, "bob")
	d.SetStatus(ctx, "alice", models.StatusAway)

	if err := d.Rename(ctx, "alice", "bob"); !errors.Is(err, ErrTaken) {
		t.Fatalf("expected ErrTaken, got %v", err)
	}
	if err := d.Rename(ctx, "carol", "dave"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := d.Rename(ctx, "alice", "alicia"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := d.Exists(ctx, "alice"); ok {
		t.Fatal("old nickname should be free")
	}
	p, err := d.GetProfile(ctx, "alicia")
	if err != nil {
		t.Fatal(err)
	}
	if p.Username != "alicia" || p.Status != models.StatusAway {
		t.Fatalf("profile did not follow rename: %+v", p)
	}
}
