package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// AccessLedger stores attempts in access_attempts. Reserve serializes
// reservations per member with a transaction-scoped advisory lock keyed on
// the member id; the unique grant-slot index backs it up.
type AccessLedger struct {
	db TxDB
}

func NewAccessLedger(db TxDB) *AccessLedger {
	return &AccessLedger{db: db}
}

const attemptColumns = `attempt_id, member_id, credential_hash, kiosk_id, attempted_at,
	requested_at, granted, reason, cycle_window_start, grant_seq`

func (l *AccessLedger) GrantedAttempts(ctx context.Context, memberID string, from, to time.Time) ([]types.AccessAttempt, error) {
	rows, err := l.db.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM access_attempts
		 WHERE member_id = $1 AND granted
		   AND attempted_at >= $2 AND attempted_at < $3
		 ORDER BY attempted_at, attempt_id`,
		memberID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("granted attempts: %w", err)
	}
	defer rows.Close()

	var out []types.AccessAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("granted attempts rows: %w", err)
	}
	return out, nil
}

func (l *AccessLedger) AppendAttempt(ctx context.Context, rec types.AccessAttempt) error {
	return pgx.BeginTxFunc(ctx, l.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return insertAttempt(ctx, tx, normalize(rec))
	})
}

func (l *AccessLedger) Reserve(ctx context.Context, memberID string, window types.CycleWindow, decide store.ReserveFunc) (types.AccessAttempt, error) {
	var out types.AccessAttempt

	err := pgx.BeginTxFunc(ctx, l.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, memberID); err != nil {
			return fmt.Errorf("lock member: %w", err)
		}

		var snap types.LedgerSnapshot
		var last *time.Time
		err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FILTER (WHERE attempted_at >= $2 AND attempted_at < $3),
			        MAX(attempted_at)
			 FROM access_attempts
			 WHERE member_id = $1 AND granted`,
			memberID, window.Start, window.QuotaEnd(),
		).Scan(&snap.GrantedInWindow, &last)
		if err != nil {
			return fmt.Errorf("ledger snapshot: %w", err)
		}
		if last != nil {
			t := last.UTC()
			snap.LastGrantAt = &t
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

func normalize(rec types.AccessAttempt) types.AccessAttempt {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	// timestamptz keeps microseconds.
	rec.Timestamp = rec.Timestamp.UTC().Truncate(time.Microsecond)
	return rec
}

func insertAttempt(ctx context.Context, tx pgx.Tx, rec types.AccessAttempt) error {
	if err := ensureKiosk(ctx, tx, rec.KioskID); err != nil {
		return err
	}

	var credHash any
	if len(rec.CredentialHash) == 32 {
		credHash = rec.CredentialHash
	}
	var windowStart any
	if !rec.CycleWindowStart.IsZero() {
		windowStart = rec.CycleWindowStart
	}
	var grantSeq any
	if rec.Granted {
		grantSeq = rec.GrantSeq
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO access_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, nilIfEmpty(rec.MemberID), credHash, rec.KioskID, rec.Timestamp,
		rec.RequestedAt, rec.Granted, string(rec.Reason), windowStart, grantSeq,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert attempt %s: %w", rec.ID, store.ErrConflict)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func scanAttempt(row pgx.Row) (types.AccessAttempt, error) {
	var (
		a           types.AccessAttempt
		memberID    *string
		requestedAt *time.Time
		reason      string
		windowStart *time.Time
		grantSeq    *int32
	)
	err := row.Scan(&a.ID, &memberID, &a.CredentialHash, &a.KioskID, &a.Timestamp,
		&requestedAt, &a.Granted, &reason, &windowStart, &grantSeq)
	if err != nil {
		return types.AccessAttempt{}, err
	}
	if memberID != nil {
		a.MemberID = *memberID
	}
	a.Timestamp = a.Timestamp.UTC()
	if requestedAt != nil {
		t := requestedAt.UTC()
		a.RequestedAt = &t
	}
	a.Reason = types.ReasonCode(reason)
	if windowStart != nil {
		a.CycleWindowStart = windowStart.UTC()
	}
	if grantSeq != nil {
		a.GrantSeq = int(*grantSeq)
	}
	return a, nil
}
