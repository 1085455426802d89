package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/db"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// AccessLedger stores check-in attempts in access_attempts. Every write,
// including Reserve's read-decide-append, runs on the single writer, so two
// reservations can never interleave.
type AccessLedger struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLedger(db *sql.DB, writer *dbpkg.Worker) *AccessLedger {
	return &AccessLedger{db: db, writer: writer}
}

func (l *AccessLedger) GrantedAttempts(ctx context.Context, memberID string, from, to time.Time) ([]types.AccessAttempt, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT attempt_id, member_id, credential_hash, kiosk_id, attempted_at_ms,
       requested_at_ms, granted, reason, cycle_window_start_ms, grant_seq
FROM access_attempts
WHERE member_id = ? AND granted = 1
  AND attempted_at_ms >= ? AND attempted_at_ms < ?
ORDER BY attempted_at_ms, attempt_id;
`, memberID, from.UTC().UnixMilli(), to.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("GrantedAttempts query: %w", err)
	}
	defer rows.Close()

	var out []types.AccessAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("GrantedAttempts scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GrantedAttempts rows: %w", err)
	}
	return out, nil
}

func (l *AccessLedger) AppendAttempt(ctx context.Context, rec types.AccessAttempt) error {
	rec = normalize(rec)
	return l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertAttempt(ctx, tx, rec)
	})
}

func (l *AccessLedger) Reserve(ctx context.Context, memberID string, window types.CycleWindow, decide store.ReserveFunc) (types.AccessAttempt, error) {
	var out types.AccessAttempt

	err := l.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		snap, err := snapshot(ctx, tx, memberID, window)
		if err != nil {
			return err
		}

		rec := normalize(store.SealGrant(decide(snap), window, snap))
		if err := insertAttempt(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return types.AccessAttempt{}, err
	}
	return out, nil
}

func snapshot(ctx context.Context, tx *sql.Tx, memberID string, window types.CycleWindow) (types.LedgerSnapshot, error) {
	var (
		snap types.LedgerSnapshot
		last sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, `
SELECT
  COALESCE(SUM(CASE WHEN attempted_at_ms >= ? AND attempted_at_ms < ? THEN 1 ELSE 0 END), 0),
  MAX(attempted_at_ms)
FROM access_attempts
WHERE member_id = ? AND granted = 1;
`, window.Start.UTC().UnixMilli(), window.QuotaEnd().UTC().UnixMilli(), memberID).Scan(&snap.GrantedInWindow, &last)
	if err != nil {
		return types.LedgerSnapshot{}, fmt.Errorf("Reserve snapshot: %w", err)
	}
	if last.Valid {
		t := time.UnixMilli(last.Int64).UTC()
		snap.LastGrantAt = &t
	}
	return snap, nil
}

func normalize(rec types.AccessAttempt) types.AccessAttempt {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	// Stored at millisecond precision; return what a later read will see.
	rec.Timestamp = time.UnixMilli(rec.Timestamp.UTC().UnixMilli()).UTC()
	return rec
}

func insertAttempt(ctx context.Context, tx *sql.Tx, rec types.AccessAttempt) error {
	tsMs := rec.Timestamp.UTC().UnixMilli()

	if err := ensureKiosk(ctx, tx, rec.KioskID, tsMs); err != nil {
		return err
	}

	var memberID any
	if rec.MemberID != "" {
		memberID = rec.MemberID
	}

	var credHash any
	if len(rec.CredentialHash) == 32 {
		credHash = rec.CredentialHash
	}

	var requestedMs any
	if rec.RequestedAt != nil {
		requestedMs = rec.RequestedAt.UTC().UnixMilli()
	}

	var granted int
	var grantSeq any
	if rec.Granted {
		granted = 1
		grantSeq = rec.GrantSeq
	}

	windowMs := nullMs(rec.CycleWindowStart.UTC().UnixMilli(), !rec.CycleWindowStart.IsZero())

	if _, err := tx.ExecContext(ctx, `
INSERT INTO access_attempts(
  attempt_id, member_id, credential_hash, kiosk_id, attempted_at_ms,
  requested_at_ms, granted, reason, cycle_window_start_ms, grant_seq
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rec.ID, memberID, credHash, rec.KioskID, tsMs,
		requestedMs, granted, string(rec.Reason), windowMs, grantSeq,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert attempt %s: %w", rec.ID, store.ErrConflict)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s scanner) (types.AccessAttempt, error) {
	var (
		a           types.AccessAttempt
		memberID    sql.NullString
		tsMs        int64
		requestedMs sql.NullInt64
		granted     int
		reason      string
		windowMs    sql.NullInt64
		grantSeq    sql.NullInt64
	)
	if err := s.Scan(&a.ID, &memberID, &a.CredentialHash, &a.KioskID, &tsMs,
		&requestedMs, &granted, &reason, &windowMs, &grantSeq); err != nil {
		return types.AccessAttempt{}, err
	}

	a.MemberID = memberID.String
	a.Timestamp = time.UnixMilli(tsMs).UTC()
	if requestedMs.Valid {
		t := time.UnixMilli(requestedMs.Int64).UTC()
		a.RequestedAt = &t
	}
	a.Granted = granted == 1
	a.Reason = types.ReasonCode(reason)
	if windowMs.Valid {
		a.CycleWindowStart = time.UnixMilli(windowMs.Int64).UTC()
	}
	a.GrantSeq = int(grantSeq.Int64)
	return a, nil
}
