package policy

import (
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// Rules are the engine-wide knobs that are not part of a plan.
type Rules struct {
	// DuplicateWindow rejects a grant when the member's previous grant is
	// more recent than this. Zero disables the cooldown.
	DuplicateWindow time.Duration

	// DuplicateSameDay rejects a second grant on the same local calendar day.
	DuplicateSameDay bool

	// Location is the gym's local time zone for schedules and calendar days.
	Location *time.Location
}

func (r Rules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Verdict is the outcome of the gates. Used is the number of grants already
// in the window when the verdict was reached; Remaining is nil for unlimited
// plans and for verdicts that stopped before the quota gate.
type Verdict struct {
	Granted   bool
	Reason    types.ReasonCode
	Used      int
	Remaining *int
}

func deny(r types.ReasonCode) Verdict { return Verdict{Reason: r} }

// Precheck applies the gates that need no ledger state: assignment, status
// and payment. ok is false when one of them denied.
func Precheck(m types.Member, p *types.Plan, w types.CycleWindow, now time.Time) (Verdict, bool) {
	if !m.Assigned() || p == nil {
		return deny(types.ReasonNoAssignment), false
	}
	if !m.Active() {
		return deny(types.ReasonMembershipInactive), false
	}
	if PaymentExpired(w, now) {
		return deny(types.ReasonPaymentBlocked), false
	}
	return Verdict{}, true
}

// PaymentExpired reports whether now is at or past the end of a paid window.
// A grace window never expires this way: it is anchored on now.
func PaymentExpired(w types.CycleWindow, now time.Time) bool {
	if w.Grace {
		return false
	}
	return !now.Before(w.End)
}

// Admit applies the gates that depend on the ledger snapshot: quota,
// duplicate check-in and schedule. It must run inside the ledger's
// per-member reservation so snap cannot go stale before the write.
func Admit(p types.Plan, snap types.LedgerSnapshot, now time.Time, rules Rules) Verdict {
	used := snap.GrantedInWindow

	if !p.Unlimited() && used >= *p.VisitLimit {
		return Verdict{Reason: types.ReasonNoBalance, Used: used, Remaining: Remaining(p, used)}
	}

	if IsDuplicate(snap.LastGrantAt, now, rules) {
		return Verdict{Reason: types.ReasonDuplicateCheckIn, Used: used, Remaining: Remaining(p, used)}
	}

	if !WithinSchedule(p, now, rules.location()) {
		return Verdict{Reason: types.ReasonOutOfWindow, Used: used, Remaining: Remaining(p, used)}
	}

	return Verdict{
		Granted:   true,
		Reason:    types.ReasonOK,
		Used:      used,
		Remaining: Remaining(p, used+1),
	}
}

// IsDuplicate reports whether a grant at now would repeat the one at last.
func IsDuplicate(last *time.Time, now time.Time, rules Rules) bool {
	if last == nil {
		return false
	}
	if rules.DuplicateWindow > 0 && now.Sub(*last) < rules.DuplicateWindow {
		return true
	}
	if rules.DuplicateSameDay {
		loc := rules.location()
		ly, lm, ld := last.In(loc).Date()
		ny, nm, nd := now.In(loc).Date()
		return ly == ny && lm == nm && ld == nd
	}
	return false
}

// WithinSchedule reports whether now falls inside one of the plan's entry
// windows. Plans without RestrictToWindows are always open.
func WithinSchedule(p types.Plan, now time.Time, loc *time.Location) bool {
	if !p.RestrictToWindows {
		return true
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	for _, w := range p.Windows {
		if w.Weekday != nil && *w.Weekday != local.Weekday() {
			continue
		}
		if w.StartMinute <= w.EndMinute {
			if minute >= w.StartMinute && minute < w.EndMinute {
				return true
			}
			continue
		}
		// Wraps past midnight.
		if minute >= w.StartMinute || minute < w.EndMinute {
			return true
		}
	}
	return false
}
