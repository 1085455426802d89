package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ensureKiosk guarantees a kiosks row exists for kioskID so the foreign keys
// from heartbeats and access attempts are satisfied.
//
// New rows start disabled; only an admin action or the dev seeder enables a
// kiosk. Must be called inside an existing transaction.
func ensureKiosk(ctx context.Context, tx *sql.Tx, kioskID string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO kiosks(
  kiosk_id, enabled, created_at_ms, updated_at_ms
) VALUES (?, 0, ?, ?);
`, kioskID, nowMs, nowMs); err != nil {
		return fmt.Errorf("ensureKiosk %s: %w", kioskID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func nullMs(ms int64, valid bool) any {
	if !valid {
		return nil
	}
	return ms
}
