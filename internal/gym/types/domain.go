package types

import "time"

// DefaultCycleLengthDays is used when a plan does not specify its own cycle.
const DefaultCycleLengthDays = 30

type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInactive MemberStatus = "inactive"
)

// Member is a read-only snapshot of the membership store.
// An empty PlanRef means the member has no plan assigned.
type Member struct {
	ID          string
	ExternalKey string
	Name        string
	AvatarRef   string
	Status      MemberStatus
	PlanRef     string
}

func (m Member) Active() bool { return m.Status == MemberActive }

func (m Member) Assigned() bool { return m.PlanRef != "" }

// AccessWindow is a daily entry window in minutes since local midnight.
// StartMinute is inclusive, EndMinute exclusive. A window whose end is before
// its start wraps past midnight. A nil Weekday applies to every day.
type AccessWindow struct {
	Weekday     *time.Weekday
	StartMinute int
	EndMinute   int
}

// Plan is a read-only snapshot of the plan catalog.
// A nil VisitLimit means unlimited visits per cycle.
type Plan struct {
	ID                string
	Name              string
	VisitLimit        *int
	CycleLengthDays   int
	RestrictToWindows bool
	Windows           []AccessWindow
}

func (p Plan) Unlimited() bool { return p.VisitLimit == nil }

// CycleDays returns the plan cycle length, falling back to the default.
func (p Plan) CycleDays() int {
	if p.CycleLengthDays <= 0 {
		return DefaultCycleLengthDays
	}
	return p.CycleLengthDays
}

type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentPending  PaymentStatus = "pending"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentEvent is one row of the billing ledger. ID grows with insertion
// order and is used to break ties between events on the same date.
type PaymentEvent struct {
	ID          int64
	MemberID    string
	Date        time.Time
	AmountCents int64
	Status      PaymentStatus
}

// CycleWindow is the derived billing period [Start, End).
// Grace is set when no paid event exists and the window was synthesized;
// otherwise AnchorPaymentID names the paid event the window starts at.
type CycleWindow struct {
	Start           time.Time
	End             time.Time
	Grace           bool
	AnchorPaymentID int64
}

// quotaHorizon bounds the quota range of a grace window.
var quotaHorizon = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// QuotaEnd is the exclusive upper bound for counting grants against w.
// A grace window ends at the clock reading of the request that derived it,
// so a grant stamped at or after that instant by a concurrent request must
// still count: its quota range is open-ended.
func (w CycleWindow) QuotaEnd() time.Time {
	if w.Grace {
		return quotaHorizon
	}
	return w.End
}

// CountsGrant reports whether a grant stamped at t consumes quota in w.
func (w CycleWindow) CountsGrant(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.QuotaEnd())
}

// AccessAttempt is one Access Ledger row. Rows are never updated or deleted.
//
// MemberID is empty when the presented credential did not resolve to a
// member; CredentialHash (SHA-256 of the external key) is always set so those
// attempts remain traceable. CycleWindowStart is zero when the decision
// stopped before the cycle was derived. GrantSeq is the 1-based position of a
// grant within its cycle window, zero for denials.
type AccessAttempt struct {
	ID               string
	MemberID         string
	CredentialHash   []byte
	KioskID          string
	Timestamp        time.Time
	RequestedAt      *time.Time
	Granted          bool
	Reason           ReasonCode
	CycleWindowStart time.Time
	GrantSeq         int
}

// LedgerSnapshot is what the Access Ledger knows about a member at the
// moment a grant is being reserved.
type LedgerSnapshot struct {
	GrantedInWindow int
	LastGrantAt     *time.Time
}
