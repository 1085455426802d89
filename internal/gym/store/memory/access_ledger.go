package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// AccessLedger is an in-memory append-only log of check-in attempts.
// A single mutex serializes every append, which makes Reserve atomic for
// all members at once. It is intended for tests and dev environments.
type AccessLedger struct {
	mu       sync.Mutex
	attempts []types.AccessAttempt
	ids      map[string]struct{}
}

func NewAccessLedger() *AccessLedger {
	return &AccessLedger{ids: make(map[string]struct{})}
}

func (l *AccessLedger) GrantedAttempts(_ context.Context, memberID string, from, to time.Time) ([]types.AccessAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []types.AccessAttempt
	for _, a := range l.attempts {
		if !a.Granted || a.MemberID != memberID {
			continue
		}
		if a.Timestamp.Before(from) || !a.Timestamp.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (l *AccessLedger) AppendAttempt(_ context.Context, rec types.AccessAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(rec)
}

func (l *AccessLedger) Reserve(_ context.Context, memberID string, window types.CycleWindow, decide store.ReserveFunc) (types.AccessAttempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := types.LedgerSnapshot{}
	for _, a := range l.attempts {
		if !a.Granted || a.MemberID != memberID {
			continue
		}
		if window.CountsGrant(a.Timestamp) {
			snap.GrantedInWindow++
		}
		if snap.LastGrantAt == nil || a.Timestamp.After(*snap.LastGrantAt) {
			t := a.Timestamp
			snap.LastGrantAt = &t
		}
	}

	rec := store.SealGrant(decide(snap), window, snap)
	if err := l.appendLocked(rec); err != nil {
		return types.AccessAttempt{}, err
	}
	return rec, nil
}

func (l *AccessLedger) appendLocked(rec types.AccessAttempt) error {
	if _, dup := l.ids[rec.ID]; dup && rec.ID != "" {
		return store.ErrConflict
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.ID != "" {
		l.ids[rec.ID] = struct{}{}
	}
	l.attempts = append(l.attempts, rec)
	return nil
}

// Attempts returns a copy of every recorded attempt. Test-only helper.
func (l *AccessLedger) Attempts() []types.AccessAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.AccessAttempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}
