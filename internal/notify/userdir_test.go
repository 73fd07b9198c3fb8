package notify

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	d, err := NewDirectory(db)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	return d
}

func TestRegisterAndActiveUsers(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	d.Register(ctx, "u2")
	d.Register(ctx, "u1")
	d.Register(ctx, "u1") // idempotent

	got, err := d.ActiveUsers(ctx)
	if err != nil {
		t.Fatalf("ActiveUsers: %v", err)
	}
	if len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Errorf("ActiveUsers = %v", got)
	}
}

func TestBlockRemovesFromActiveSet(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	d.Register(ctx, "u1")
	d.Register(ctx, "u2")
	if err := d.Block(ctx, "u1"); err != nil {
		t.Fatalf("Block: %v", err)
	}

	got, _ := d.ActiveUsers(ctx)
	if len(got) != 1 || got[0] != "u2" {
		t.Errorf("ActiveUsers = %v", got)
	}

	// Re-follow reactivates.
	d.Register(ctx, "u1")
	got, _ = d.ActiveUsers(ctx)
	if len(got) != 2 {
		t.Errorf("ActiveUsers after re-register = %v", got)
	}
}

func TestLocationRoundTrip(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	if loc, err := d.Location(ctx, "unknown"); err != nil || loc != "" {
		t.Errorf("Location(unknown) = %q, %v", loc, err)
	}

	if err := d.SetLocation(ctx, "u1", "東京"); err != nil {
		t.Fatalf("SetLocation: %v", err)
	}
	loc, err := d.Location(ctx, "u1")
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc != "東京" {
		t.Errorf("Location = %q", loc)
	}

	// SetLocation on an unseen user registers them.
	got, _ := d.ActiveUsers(ctx)
	if len(got) != 1 {
		t.Errorf("ActiveUsers = %v", got)
	}
}
