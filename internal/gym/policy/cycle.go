// Package policy holds the pure parts of the access engine: cycle
// derivation, quota counting and the ordered decision gates. Nothing here
// blocks or touches a store.
package policy

import (
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// ComputeCycle derives the member's current billing window from their
// payment history.
//
// The window starts at the most recent paid event. Events on the same date
// are ordered by ID, then by position in history, and the last one wins.
// Events for other members and non-paid events are ignored. Without any paid
// event the member gets a grace window ending at now.
func ComputeCycle(m types.Member, p types.Plan, history []types.PaymentEvent, now time.Time) types.CycleWindow {
	days := p.CycleDays()

	latest, ok := latestPaid(m.ID, history)
	if !ok {
		start := now.AddDate(0, 0, -days)
		return types.CycleWindow{
			Start: start,
			End:   start.AddDate(0, 0, days),
			Grace: true,
		}
	}

	return types.CycleWindow{
		Start:           latest.Date,
		End:             latest.Date.AddDate(0, 0, days),
		AnchorPaymentID: latest.ID,
	}
}

func latestPaid(memberID string, history []types.PaymentEvent) (types.PaymentEvent, bool) {
	var (
		best  types.PaymentEvent
		found bool
	)
	for _, ev := range history {
		if ev.Status != types.PaymentPaid {
			continue
		}
		if memberID != "" && ev.MemberID != "" && ev.MemberID != memberID {
			continue
		}
		if !found || supersedes(ev, best) {
			best = ev
			found = true
		}
	}
	return best, found
}

// supersedes reports whether a (seen later in history) replaces b.
func supersedes(a, b types.PaymentEvent) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.ID >= b.ID
}
