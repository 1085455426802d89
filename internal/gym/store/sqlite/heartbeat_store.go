package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/db"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

// RecordHeartbeat appends a kiosk_heartbeats row and refreshes the kiosk's
// last-seen snapshot. An empty kioskID is a no-op.
func (s *HeartbeatStore) RecordHeartbeat(ctx context.Context, kioskID string, rec store.HeartbeatRecord) error {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return nil
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()

	appVersion := strings.TrimSpace(rec.Request.AppVersion)
	ip := strings.TrimSpace(rec.Request.IP)

	var uptimeMs any
	if rec.Request.UptimeSeconds != 0 {
		uptimeMs = int64(rec.Request.UptimeSeconds) * 1000
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureKiosk(ctx, tx, kioskID, recvMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO kiosk_heartbeats(
  kiosk_id, received_at_ms, uptime_ms, app_version, ip
) VALUES (?, ?, ?, ?, ?);
`, kioskID, recvMs, uptimeMs, appVersion, ip); err != nil {
			return fmt.Errorf("RecordHeartbeat insert heartbeat: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE kiosks
SET last_seen_at_ms  = ?,
    last_ip          = ?,
    last_app_version = ?,
    updated_at_ms    = ?
WHERE kiosk_id = ?;
`, recvMs, ip, appVersion, recvMs, kioskID); err != nil {
			return fmt.Errorf("RecordHeartbeat update kiosk snapshot: %w", err)
		}

		return nil
	})
}

// PruneOlderThan deletes heartbeat rows received before cutoff and returns
// how many were removed. Kiosk snapshots and the access ledger are untouched.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM kiosk_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
