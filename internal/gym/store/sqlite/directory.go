package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// Directory reads the membership, plan and billing tables. Those tables are
// maintained by the back office; the access engine never writes them.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) ResolveMember(ctx context.Context, externalKey string) (types.Member, error) {
	var (
		m      types.Member
		status string
		planID sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
SELECT member_id, external_key, name, avatar_ref, status, plan_id
FROM members
WHERE external_key = ?;
`, externalKey).Scan(&m.ID, &m.ExternalKey, &m.Name, &m.AvatarRef, &status, &planID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Member{}, store.ErrNotFound
	}
	if err != nil {
		return types.Member{}, fmt.Errorf("ResolveMember query: %w", err)
	}
	m.Status = types.MemberStatus(status)
	m.PlanRef = planID.String
	return m, nil
}

func (d *Directory) GetPlan(ctx context.Context, planRef string) (types.Plan, error) {
	var (
		p          types.Plan
		limit      sql.NullInt64
		restricted int
	)
	err := d.db.QueryRowContext(ctx, `
SELECT plan_id, name, visit_limit, cycle_length_days, restrict_to_windows
FROM plans
WHERE plan_id = ?;
`, planRef).Scan(&p.ID, &p.Name, &limit, &p.CycleLengthDays, &restricted)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Plan{}, store.ErrNotFound
	}
	if err != nil {
		return types.Plan{}, fmt.Errorf("GetPlan query: %w", err)
	}
	if limit.Valid {
		n := int(limit.Int64)
		p.VisitLimit = &n
	}
	p.RestrictToWindows = restricted == 1

	rows, err := d.db.QueryContext(ctx, `
SELECT weekday, start_minute, end_minute
FROM plan_windows
WHERE plan_id = ?
ORDER BY window_id;
`, planRef)
	if err != nil {
		return types.Plan{}, fmt.Errorf("GetPlan windows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			w       types.AccessWindow
			weekday sql.NullInt64
		)
		if err := rows.Scan(&weekday, &w.StartMinute, &w.EndMinute); err != nil {
			return types.Plan{}, fmt.Errorf("GetPlan windows scan: %w", err)
		}
		if weekday.Valid {
			wd := time.Weekday(weekday.Int64)
			w.Weekday = &wd
		}
		p.Windows = append(p.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return types.Plan{}, fmt.Errorf("GetPlan windows rows: %w", err)
	}
	return p, nil
}

func (d *Directory) GetPaymentHistory(ctx context.Context, memberID string) ([]types.PaymentEvent, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT payment_id, member_id, paid_on_ms, amount_cents, status
FROM payment_events
WHERE member_id = ?
ORDER BY paid_on_ms DESC, payment_id DESC;
`, memberID)
	if err != nil {
		return nil, fmt.Errorf("GetPaymentHistory query: %w", err)
	}
	defer rows.Close()

	var out []types.PaymentEvent
	for rows.Next() {
		var (
			ev     types.PaymentEvent
			dateMs int64
			status string
		)
		if err := rows.Scan(&ev.ID, &ev.MemberID, &dateMs, &ev.AmountCents, &status); err != nil {
			return nil, fmt.Errorf("GetPaymentHistory scan: %w", err)
		}
		ev.Date = time.UnixMilli(dateMs).UTC()
		ev.Status = types.PaymentStatus(status)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPaymentHistory rows: %w", err)
	}
	return out, nil
}
