// Package store defines the persistence contracts the access engine depends
// on. Membership, plan and billing data are owned by other subsystems and are
// only ever read here; the Access Ledger is the one store the engine writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

var (
	// ErrNotFound is returned by lookups when the row does not exist.
	// It is a normal outcome, never an infrastructure failure.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an append collides with an existing row,
	// either a reused attempt ID or a grant slot already taken.
	ErrConflict = errors.New("store: conflict")
)

type MemberStore interface {
	// ResolveMember maps the credential presented at the kiosk to a member.
	ResolveMember(ctx context.Context, externalKey string) (types.Member, error)
}

type PlanStore interface {
	GetPlan(ctx context.Context, planRef string) (types.Plan, error)
}

type BillingStore interface {
	// GetPaymentHistory returns the member's payment events, most recent
	// date first. An unknown member yields an empty history.
	GetPaymentHistory(ctx context.Context, memberID string) ([]types.PaymentEvent, error)
}

// ReserveFunc decides the attempt to append from the ledger's view of the
// member. It runs while the ledger holds the member's reservation and must
// not block.
type ReserveFunc func(snap types.LedgerSnapshot) types.AccessAttempt

// AccessLedger is the append-only audit log of check-in attempts.
type AccessLedger interface {
	// GrantedAttempts lists granted attempts by memberID with a timestamp in
	// [from, to), oldest first.
	GrantedAttempts(ctx context.Context, memberID string, from, to time.Time) ([]types.AccessAttempt, error)

	// AppendAttempt appends rec. It returns ErrConflict if rec.ID exists.
	AppendAttempt(ctx context.Context, rec types.AccessAttempt) error

	// Reserve counts memberID's grants inside window, finds the member's
	// latest grant, lets decide build the attempt and appends it, all as one
	// atomic step per member. Concurrent reservations for the same member
	// observe each other's grants. A granted attempt is stamped with its
	// GrantSeq and CycleWindowStart before it is written.
	Reserve(ctx context.Context, memberID string, window types.CycleWindow, decide ReserveFunc) (types.AccessAttempt, error)
}

// KioskStore tracks the front-desk terminals.
type KioskStore interface {
	IsKnown(ctx context.Context, kioskID string) (bool, error)
	MarkSeen(ctx context.Context, kioskID string, known bool, t time.Time) error
}

type HeartbeatRecord struct {
	ReceivedAt time.Time
	Request    types.HeartbeatRequest
}

type HeartbeatStore interface {
	RecordHeartbeat(ctx context.Context, kioskID string, rec HeartbeatRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SealGrant stamps a granted attempt with its slot in the window. Ledger
// implementations call it on the attempt returned by a ReserveFunc.
func SealGrant(rec types.AccessAttempt, window types.CycleWindow, snap types.LedgerSnapshot) types.AccessAttempt {
	if rec.CycleWindowStart.IsZero() {
		rec.CycleWindowStart = window.Start
	}
	if rec.Granted {
		rec.GrantSeq = snap.GrantedInWindow + 1
	} else {
		rec.GrantSeq = 0
	}
	return rec
}
