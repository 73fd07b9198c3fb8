package session

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestSnapshotStore(t *testing.T) *SnapshotStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewSnapshotStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := newTestSnapshotStore(t)

	src := NewStore(10)
	src.Append("u1", "user", "hello")
	src.Append("u1", "model", "hi!")
	src.Append("u2", "user", "other user")
	snap.SaveAll(src)

	dst := NewStore(10)
	snap.Hydrate(dst)

	got := dst.History("u1")
	if len(got) != 2 || got[0].Text != "hello" || got[1].Text != "hi!" {
		t.Errorf("hydrated history = %v", got)
	}
	if len(dst.History("u2")) != 1 {
		t.Error("second user not hydrated")
	}
}

func TestSnapshotOverwrite(t *testing.T) {
	snap := newTestSnapshotStore(t)

	if err := snap.Save("u1", []Turn{{Role: "user", Text: "old"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := snap.Save("u1", []Turn{{Role: "user", Text: "new"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := NewStore(10)
	snap.Hydrate(dst)

	got := dst.History("u1")
	if len(got) != 1 || got[0].Text != "new" {
		t.Errorf("history = %v, want single new turn", got)
	}
}

func TestHydrateSkipsCorruptRow(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	snap, err := NewSnapshotStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO session_snapshots (user_id, turns, updated_at) VALUES ('bad', 'not json', '')`); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}
	if err := snap.Save("good", []Turn{{Role: "user", Text: "ok"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := NewStore(10)
	snap.Hydrate(dst)

	if len(dst.History("bad")) != 0 {
		t.Error("corrupt row hydrated")
	}
	if len(dst.History("good")) != 1 {
		t.Error("good row lost")
	}
}
