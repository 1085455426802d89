package service

import (
	"context"
	"strings"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
)

type KioskRegistry struct {
	store store.KioskStore
	now   func() time.Time
}

func NewKioskRegistry(st store.KioskStore) *KioskRegistry {
	return &KioskRegistry{store: st, now: time.Now}
}

func (r *KioskRegistry) IsKnown(ctx context.Context, kioskID string) (bool, error) {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return false, nil
	}
	return r.store.IsKnown(ctx, kioskID)
}

func (r *KioskRegistry) NoteSeen(ctx context.Context, kioskID string, known bool) error {
	kioskID = strings.TrimSpace(kioskID)
	if kioskID == "" {
		return nil
	}
	return r.store.MarkSeen(ctx, kioskID, known, r.now().UTC())
}
