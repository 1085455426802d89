package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// KnownKiosks are pre-registered and enabled.
	KnownKiosks []string

	// Now anchors the seeded payment dates. Defaults to time.Now.
	Now time.Time
}

// SeedDev loads a small plan catalog, a handful of members and their
// payments so a dev kiosk has something to check in against. It is
// idempotent.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	nowMs := now.UTC().UnixMilli()
	day := func(daysAgo int) int64 {
		y, m, d := now.UTC().AddDate(0, 0, -daysAgo).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).UnixMilli()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO plans(plan_id, name, visit_limit, cycle_length_days, restrict_to_windows, created_at_ms, updated_at_ms)
VALUES
  ('plan_libre',    'Pase Libre',      NULL, 30, 0, ?, ?),
  ('plan_8',        '8 Clases',        8,    30, 0, ?, ?),
  ('plan_manana',   'Turno Mañana',    NULL, 30, 1, ?, ?);
`, nowMs, nowMs, nowMs, nowMs, nowMs, nowMs); err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}

	// Turno Mañana: 07:00-12:00 every day.
	if _, err := tx.ExecContext(ctx, `
INSERT INTO plan_windows(plan_id, weekday, start_minute, end_minute)
SELECT 'plan_manana', NULL, 420, 720
WHERE NOT EXISTS (SELECT 1 FROM plan_windows WHERE plan_id = 'plan_manana');
`); err != nil {
		return fmt.Errorf("seed plan windows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO members(member_id, external_key, name, avatar_ref, status, plan_id, created_at_ms, updated_at_ms)
VALUES
  ('mem_ana',    '30111222', 'Ana Gómez',    '', 'active',   'plan_libre',  ?, ?),
  ('mem_bruno',  '30222333', 'Bruno Díaz',   '', 'active',   'plan_8',      ?, ?),
  ('mem_carla',  '30333444', 'Carla Ruiz',   '', 'active',   'plan_8',      ?, ?),
  ('mem_diego',  '30444555', 'Diego Sosa',   '', 'inactive', 'plan_libre',  ?, ?),
  ('mem_elena',  '30555666', 'Elena Paz',    '', 'active',   NULL,          ?, ?);
`, nowMs, nowMs, nowMs, nowMs, nowMs, nowMs, nowMs, nowMs, nowMs, nowMs); err != nil {
		return fmt.Errorf("seed members: %w", err)
	}

	// Ana and Bruno are up to date; Carla's last payment lapsed.
	if _, err := tx.ExecContext(ctx, `
INSERT INTO payment_events(member_id, paid_on_ms, amount_cents, status, created_at_ms)
SELECT v.member_id, v.paid_on_ms, v.amount_cents, v.status, ?
FROM (
  SELECT 'mem_ana' AS member_id, ? AS paid_on_ms, 2500000 AS amount_cents, 'paid' AS status
  UNION ALL SELECT 'mem_bruno', ?, 1800000, 'paid'
  UNION ALL SELECT 'mem_carla', ?, 1800000, 'paid'
) AS v
WHERE NOT EXISTS (SELECT 1 FROM payment_events);
`, nowMs, day(5), day(12), day(45)); err != nil {
		return fmt.Errorf("seed payments: %w", err)
	}

	for _, kid := range opt.KnownKiosks {
		kid = strings.TrimSpace(kid)
		if kid == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO kiosks(kiosk_id, display_name, enabled, created_at_ms, updated_at_ms)
VALUES (?, ?, 1, ?, ?)
ON CONFLICT(kiosk_id) DO UPDATE SET
  enabled = 1,
  updated_at_ms = excluded.updated_at_ms;
`, kid, kid, nowMs, nowMs); err != nil {
			return fmt.Errorf("seed kiosk %s: %w", kid, err)
		}
	}

	return tx.Commit()
}
