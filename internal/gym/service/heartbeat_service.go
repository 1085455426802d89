package service

import (
	"context"
	"strings"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	registry       *KioskRegistry
	now            func() time.Time
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *KioskRegistry) *HeartbeatService {
	return &HeartbeatService{heartbeatStore: hs, registry: reg, now: time.Now}
}

func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	kioskID := strings.TrimSpace(req.KioskID)
	if kioskID == "" {
		return types.HeartbeatResponse{}, invalidKiosk()
	}

	known, err := s.registry.IsKnown(ctx, kioskID)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	_ = s.registry.NoteSeen(ctx, kioskID, known)

	now := s.now().UTC()
	rec := store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    req,
	}
	if err := s.heartbeatStore.RecordHeartbeat(ctx, kioskID, rec); err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		KioskID:    kioskID,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}
