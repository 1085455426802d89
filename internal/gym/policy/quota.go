package policy

import (
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// CountGranted counts granted attempts by memberID that consume quota in w.
// Denied attempts never do.
func CountGranted(attempts []types.AccessAttempt, memberID string, w types.CycleWindow) int {
	n := 0
	for _, a := range attempts {
		if !a.Granted || a.MemberID != memberID {
			continue
		}
		if w.CountsGrant(a.Timestamp) {
			n++
		}
	}
	return n
}

// LastGrant returns the most recent granted attempt timestamp for memberID.
func LastGrant(attempts []types.AccessAttempt, memberID string) *time.Time {
	var last *time.Time
	for _, a := range attempts {
		if !a.Granted || a.MemberID != memberID {
			continue
		}
		if last == nil || a.Timestamp.After(*last) {
			t := a.Timestamp
			last = &t
		}
	}
	return last
}

// Remaining returns how many visits are left after `used` grants, or nil for
// unlimited plans. It never goes below zero.
func Remaining(p types.Plan, used int) *int {
	if p.Unlimited() {
		return nil
	}
	r := *p.VisitLimit - used
	if r < 0 {
		r = 0
	}
	return &r
}
