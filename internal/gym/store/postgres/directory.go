package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// Directory reads members, plans and payment events. The back office owns
// those tables.
type Directory struct {
	db DBTX
}

func NewDirectory(db DBTX) *Directory {
	return &Directory{db: db}
}

func (d *Directory) ResolveMember(ctx context.Context, externalKey string) (types.Member, error) {
	var (
		m      types.Member
		status string
		planID *string
	)
	err := d.db.QueryRow(ctx,
		`SELECT member_id, external_key, name, avatar_ref, status, plan_id
		 FROM members
		 WHERE external_key = $1`,
		externalKey,
	).Scan(&m.ID, &m.ExternalKey, &m.Name, &m.AvatarRef, &status, &planID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Member{}, store.ErrNotFound
		}
		return types.Member{}, fmt.Errorf("resolve member: %w", err)
	}
	m.Status = types.MemberStatus(status)
	if planID != nil {
		m.PlanRef = *planID
	}
	return m, nil
}

func (d *Directory) GetPlan(ctx context.Context, planRef string) (types.Plan, error) {
	var (
		p     types.Plan
		limit *int32
	)
	err := d.db.QueryRow(ctx,
		`SELECT plan_id, name, visit_limit, cycle_length_days, restrict_to_windows
		 FROM plans
		 WHERE plan_id = $1`,
		planRef,
	).Scan(&p.ID, &p.Name, &limit, &p.CycleLengthDays, &p.RestrictToWindows)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Plan{}, store.ErrNotFound
		}
		return types.Plan{}, fmt.Errorf("get plan: %w", err)
	}
	if limit != nil {
		n := int(*limit)
		p.VisitLimit = &n
	}

	rows, err := d.db.Query(ctx,
		`SELECT weekday, start_minute, end_minute
		 FROM plan_windows
		 WHERE plan_id = $1
		 ORDER BY window_id`,
		planRef,
	)
	if err != nil {
		return types.Plan{}, fmt.Errorf("get plan windows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			w       types.AccessWindow
			weekday *int16
		)
		if err := rows.Scan(&weekday, &w.StartMinute, &w.EndMinute); err != nil {
			return types.Plan{}, fmt.Errorf("scan plan window: %w", err)
		}
		if weekday != nil {
			wd := time.Weekday(*weekday)
			w.Weekday = &wd
		}
		p.Windows = append(p.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return types.Plan{}, fmt.Errorf("plan windows rows: %w", err)
	}
	return p, nil
}

func (d *Directory) GetPaymentHistory(ctx context.Context, memberID string) ([]types.PaymentEvent, error) {
	rows, err := d.db.Query(ctx,
		`SELECT payment_id, member_id, paid_on, amount_cents, status
		 FROM payment_events
		 WHERE member_id = $1
		 ORDER BY paid_on DESC, payment_id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("payment history: %w", err)
	}
	defer rows.Close()

	var out []types.PaymentEvent
	for rows.Next() {
		var (
			ev     types.PaymentEvent
			status string
		)
		if err := rows.Scan(&ev.ID, &ev.MemberID, &ev.Date, &ev.AmountCents, &status); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		ev.Date = ev.Date.UTC()
		ev.Status = types.PaymentStatus(status)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payment history rows: %w", err)
	}
	return out, nil
}
