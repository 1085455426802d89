package service

import (
	"context"
	"fmt"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/policy"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// QuotaCounter answers how many visits a member has used in a window.
// Check-in does not use it to decide: the count there is taken inside the
// ledger reservation. It serves read-only views such as the usage screen.
type QuotaCounter struct {
	ledger store.AccessLedger
}

func NewQuotaCounter(ledger store.AccessLedger) *QuotaCounter {
	return &QuotaCounter{ledger: ledger}
}

// CountGrantedInWindow counts memberID's granted attempts in
// [w.Start, w.QuotaEnd()).
func (q *QuotaCounter) CountGrantedInWindow(ctx context.Context, memberID string, w types.CycleWindow) (int, error) {
	attempts, err := q.ledger.GrantedAttempts(ctx, memberID, w.Start, w.QuotaEnd())
	if err != nil {
		return 0, fmt.Errorf("count granted attempts: %w", err)
	}
	return policy.CountGranted(attempts, memberID, w), nil
}
