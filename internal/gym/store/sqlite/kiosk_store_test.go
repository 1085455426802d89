package sqlite_test

import (
	"context"
	"testing"
	"time"

	sqlitestore "github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store/sqlite"
)

func TestKioskStore_IsKnown(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ks := sqlitestore.NewKioskStore(conn, w)
	ctx := context.Background()

	seedKiosk(t, conn, "front", true)
	seedKiosk(t, conn, "back", false)

	cases := map[string]bool{"front": true, "back": false, "missing": false, "": false}
	for id, want := range cases {
		got, err := ks.IsKnown(ctx, id)
		if err != nil {
			t.Fatalf("IsKnown(%q): %v", id, err)
		}
		if got != want {
			t.Errorf("IsKnown(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestKioskStore_MarkSeen_CreatesDisabledRow(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ks := sqlitestore.NewKioskStore(conn, w)
	ctx := context.Background()

	at := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	if err := ks.MarkSeen(ctx, "new-kiosk", false, at); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}

	var (
		enabled  int
		lastSeen int64
	)
	err := conn.QueryRowContext(ctx,
		`SELECT enabled, last_seen_at_ms FROM kiosks WHERE kiosk_id = ?`, "new-kiosk",
	).Scan(&enabled, &lastSeen)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if enabled != 0 {
		t.Error("expected new kiosk to be disabled")
	}
	if lastSeen != at.UnixMilli() {
		t.Errorf("last_seen_at_ms = %d, want %d", lastSeen, at.UnixMilli())
	}

	known, err := ks.IsKnown(ctx, "new-kiosk")
	if err != nil {
		t.Fatalf("IsKnown: %v", err)
	}
	if known {
		t.Error("MarkSeen must not make a kiosk known")
	}
}

func TestKioskStore_Enable(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ks := sqlitestore.NewKioskStore(conn, w)
	ctx := context.Background()

	seedKiosk(t, conn, "back", false)
	if err := ks.Enable(ctx, "front", " back ", ""); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	for _, id := range []string{"front", "back"} {
		known, err := ks.IsKnown(ctx, id)
		if err != nil {
			t.Fatalf("IsKnown(%q): %v", id, err)
		}
		if !known {
			t.Errorf("expected %q to be known after Enable", id)
		}
	}
	if n := countRows(t, conn, `SELECT COUNT(*) FROM kiosks`); n != 2 {
		t.Errorf("expected 2 kiosk rows, got %d", n)
	}
}
