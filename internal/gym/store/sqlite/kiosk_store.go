package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/db"
)

type KioskStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewKioskStore(db *sql.DB, writer *dbpkg.Worker) *KioskStore {
	return &KioskStore{db: db, writer: writer}
}

// IsKnown treats a kiosk as known once it has been enabled.
func (s *KioskStore) IsKnown(ctx context.Context, kioskID string) (bool, error) {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return false, nil
	}

	var enabled int
	err := s.db.QueryRowContext(ctx, `
SELECT enabled FROM kiosks WHERE kiosk_id = ?;
`, kioskID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsKnown query: %w", err)
	}
	return enabled == 1, nil
}

// MarkSeen creates the kiosk row if needed (disabled) and bumps last_seen.
func (s *KioskStore) MarkSeen(ctx context.Context, kioskID string, _ bool, t time.Time) error {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	ms := t.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureKiosk(ctx, tx, kioskID, ms); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE kiosks
SET last_seen_at_ms = ?,
    updated_at_ms   = ?
WHERE kiosk_id = ?;
`, ms, ms, kioskID); err != nil {
			return fmt.Errorf("MarkSeen update kiosk: %w", err)
		}
		return nil
	})
}

// Enable registers kioskIDs as known, creating rows as needed.
func (s *KioskStore) Enable(ctx context.Context, kioskIDs ...string) error {
	ms := time.Now().UTC().UnixMilli()
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, id := range kioskIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if err := ensureKiosk(ctx, tx, id, ms); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
UPDATE kiosks SET enabled = 1, updated_at_ms = ? WHERE kiosk_id = ?;
`, ms, id); err != nil {
				return fmt.Errorf("Enable kiosk %s: %w", id, err)
			}
		}
		return nil
	})
}
