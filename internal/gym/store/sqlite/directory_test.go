package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	sqlitestore "github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store/sqlite"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

func seedDirectory(t *testing.T) *sqlitestore.Directory {
	t.Helper()
	conn := openTestDB(t)

	mustExec(t, conn, `
INSERT INTO plans(plan_id, name, visit_limit, cycle_length_days, restrict_to_windows, created_at_ms, updated_at_ms)
VALUES ('p-8', '8 Clases', 8, 30, 0, 0, 0),
       ('p-am', 'Turno Mañana', NULL, 30, 1, 0, 0);`)
	mustExec(t, conn, `
INSERT INTO plan_windows(plan_id, weekday, start_minute, end_minute)
VALUES ('p-am', NULL, 420, 720), ('p-am', 6, 540, 660);`)
	mustExec(t, conn, `
INSERT INTO members(member_id, external_key, name, avatar_ref, status, plan_id, created_at_ms, updated_at_ms)
VALUES ('m-1', '30111222', 'Ana', 'ana.png', 'active', 'p-8', 0, 0),
       ('m-2', '30222333', 'Bruno', '', 'inactive', NULL, 0, 0);`)

	d1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	d2 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	mustExec(t, conn, `
INSERT INTO payment_events(payment_id, member_id, paid_on_ms, amount_cents, status, created_at_ms)
VALUES (1, 'm-1', ?, 100, 'paid', 0),
       (2, 'm-1', ?, 100, 'paid', 0),
       (3, 'm-1', ?, 100, 'failed', 0),
       (4, 'm-2', ?, 100, 'paid', 0);`, d2, d1, d1, d1)

	return sqlitestore.NewDirectory(conn)
}

func TestDirectory_ResolveMember(t *testing.T) {
	d := seedDirectory(t)
	ctx := context.Background()

	m, err := d.ResolveMember(ctx, "30111222")
	if err != nil {
		t.Fatalf("ResolveMember: %v", err)
	}
	want := types.Member{ID: "m-1", ExternalKey: "30111222", Name: "Ana", AvatarRef: "ana.png", Status: types.MemberActive, PlanRef: "p-8"}
	if m != want {
		t.Errorf("got %+v, want %+v", m, want)
	}

	m, err = d.ResolveMember(ctx, "30222333")
	if err != nil {
		t.Fatalf("ResolveMember: %v", err)
	}
	if m.Assigned() || m.Active() {
		t.Errorf("expected unassigned inactive member, got %+v", m)
	}

	if _, err := d.ResolveMember(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectory_GetPlan(t *testing.T) {
	d := seedDirectory(t)
	ctx := context.Background()

	p, err := d.GetPlan(ctx, "p-8")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if p.Unlimited() || *p.VisitLimit != 8 || p.RestrictToWindows || len(p.Windows) != 0 {
		t.Errorf("unexpected capped plan %+v", p)
	}

	p, err = d.GetPlan(ctx, "p-am")
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if !p.Unlimited() || !p.RestrictToWindows || len(p.Windows) != 2 {
		t.Fatalf("unexpected windowed plan %+v", p)
	}
	if p.Windows[0].Weekday != nil || p.Windows[0].StartMinute != 420 {
		t.Errorf("unexpected first window %+v", p.Windows[0])
	}
	if p.Windows[1].Weekday == nil || *p.Windows[1].Weekday != time.Saturday {
		t.Errorf("expected Saturday window, got %+v", p.Windows[1])
	}

	if _, err := d.GetPlan(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectory_GetPaymentHistory_MostRecentFirst(t *testing.T) {
	d := seedDirectory(t)

	hist, err := d.GetPaymentHistory(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("GetPaymentHistory: %v", err)
	}
	var ids []int64
	for _, ev := range hist {
		ids = append(ids, ev.ID)
	}
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 2 || ids[2] != 1 {
		t.Errorf("unexpected order %v", ids)
	}
	if hist[2].Status != types.PaymentPaid || !hist[2].Date.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected oldest event %+v", hist[2])
	}

	empty, err := d.GetPaymentHistory(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetPaymentHistory: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty history, got %d", len(empty))
	}
}
