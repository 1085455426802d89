package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
)

// ensureKiosk inserts a disabled kiosks row if none exists.
func ensureKiosk(ctx context.Context, db DBTX, kioskID string) error {
	if _, err := db.Exec(ctx,
		`INSERT INTO kiosks (kiosk_id, enabled) VALUES ($1, FALSE)
		 ON CONFLICT (kiosk_id) DO NOTHING`,
		kioskID,
	); err != nil {
		return fmt.Errorf("ensure kiosk %s: %w", kioskID, err)
	}
	return nil
}

type KioskStore struct {
	db DBTX
}

func NewKioskStore(db DBTX) *KioskStore {
	return &KioskStore{db: db}
}

func (s *KioskStore) IsKnown(ctx context.Context, kioskID string) (bool, error) {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return false, nil
	}
	var enabled bool
	err := s.db.QueryRow(ctx, `SELECT enabled FROM kiosks WHERE kiosk_id = $1`, kioskID).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kiosk known: %w", err)
	}
	return enabled, nil
}

func (s *KioskStore) MarkSeen(ctx context.Context, kioskID string, _ bool, t time.Time) error {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return nil
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO kiosks (kiosk_id, enabled, last_seen_at) VALUES ($1, FALSE, $2)
		 ON CONFLICT (kiosk_id) DO UPDATE
		 SET last_seen_at = EXCLUDED.last_seen_at, updated_at = NOW()`,
		kioskID, t,
	)
	if err != nil {
		return fmt.Errorf("mark kiosk seen: %w", err)
	}
	return nil
}

// Enable registers kioskIDs as known, creating rows as needed.
func (s *KioskStore) Enable(ctx context.Context, kioskIDs ...string) error {
	for _, id := range kioskIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := s.db.Exec(ctx,
			`INSERT INTO kiosks (kiosk_id, enabled) VALUES ($1, TRUE)
			 ON CONFLICT (kiosk_id) DO UPDATE SET enabled = TRUE, updated_at = NOW()`,
			id,
		); err != nil {
			return fmt.Errorf("enable kiosk %s: %w", id, err)
		}
	}
	return nil
}

type HeartbeatStore struct {
	db TxDB
}

func NewHeartbeatStore(db TxDB) *HeartbeatStore {
	return &HeartbeatStore{db: db}
}

func (s *HeartbeatStore) RecordHeartbeat(ctx context.Context, kioskID string, rec store.HeartbeatRecord) error {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	var uptimeMs any
	if rec.Request.UptimeSeconds != 0 {
		uptimeMs = int64(rec.Request.UptimeSeconds) * 1000
	}
	appVersion := strings.TrimSpace(rec.Request.AppVersion)
	ip := strings.TrimSpace(rec.Request.IP)

	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := ensureKiosk(ctx, tx, kioskID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO kiosk_heartbeats (kiosk_id, received_at, uptime_ms, app_version, ip)
			 VALUES ($1, $2, $3, $4, $5)`,
			kioskID, rec.ReceivedAt, uptimeMs, appVersion, ip,
		); err != nil {
			return fmt.Errorf("insert heartbeat: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE kiosks
			 SET last_seen_at = $2, last_ip = $3, last_app_version = $4, updated_at = NOW()
			 WHERE kiosk_id = $1`,
			kioskID, rec.ReceivedAt, ip, appVersion,
		); err != nil {
			return fmt.Errorf("update kiosk snapshot: %w", err)
		}
		return nil
	})
}

func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM kiosk_heartbeats WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune heartbeats: %w", err)
	}
	return tag.RowsAffected(), nil
}
