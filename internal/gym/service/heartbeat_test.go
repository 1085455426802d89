package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/service"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store/memory"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHeartbeatService_Record(t *testing.T) {
	hs := memory.NewHeartbeatStore()
	ks := memory.NewKioskStore([]string{"kiosk-front"})
	svc := service.NewHeartbeatService(hs, service.NewKioskRegistry(ks))
	ctx := context.Background()

	resp, err := svc.Record(ctx, types.HeartbeatRequest{KioskID: " kiosk-front ", AppVersion: "1.4.0"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !resp.OK || !resp.Known || resp.KioskID != "kiosk-front" {
		t.Errorf("unexpected response %+v", resp)
	}
	if rec, ok := hs.Latest("kiosk-front"); !ok || rec.Request.AppVersion != "1.4.0" {
		t.Errorf("heartbeat not stored: %+v", rec)
	}
	if _, ok := ks.LastSeen("kiosk-front"); !ok {
		t.Error("expected kiosk to be marked seen")
	}

	resp, err = svc.Record(ctx, types.HeartbeatRequest{KioskID: "unknown"})
	if err != nil {
		t.Fatalf("Record unknown: %v", err)
	}
	if resp.Known {
		t.Error("expected unknown kiosk to report known=false")
	}
}

func TestHeartbeatService_EmptyKioskID(t *testing.T) {
	svc := service.NewHeartbeatService(memory.NewHeartbeatStore(), service.NewKioskRegistry(memory.NewKioskStore(nil)))

	_, err := svc.Record(context.Background(), types.HeartbeatRequest{})
	if !errors.Is(err, service.ErrInvalidKioskID) {
		t.Fatalf("expected ErrInvalidKioskID, got %v", err)
	}
}

func TestHeartbeatPruner_DisabledWhenRetentionZero(t *testing.T) {
	pruner := service.NewHeartbeatPruner(memory.NewHeartbeatStore(), service.PrunerConfig{
		RetentionDays: 0,
		IntervalHours: 1,
	}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner.Start(ctx)
	// Stop should return immediately.
	pruner.Stop()
}

type pruneSignal struct {
	*memory.HeartbeatStore
	called chan time.Time
}

func (p *pruneSignal) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := p.HeartbeatStore.PruneOlderThan(ctx, cutoff)
	select {
	case p.called <- cutoff:
	default:
	}
	return n, err
}

func TestHeartbeatPruner_PrunesOnStart(t *testing.T) {
	ms := &pruneSignal{HeartbeatStore: memory.NewHeartbeatStore(), called: make(chan time.Time, 1)}
	ctx := context.Background()

	for _, daysAgo := range []int{40, 1} {
		rec := store.HeartbeatRecord{ReceivedAt: time.Now().UTC().AddDate(0, 0, -daysAgo)}
		if err := ms.RecordHeartbeat(ctx, "kiosk-front", rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	pruner := service.NewHeartbeatPruner(ms, service.PrunerConfig{RetentionDays: 30, IntervalHours: 24}, silentLogger())
	pruner.Start(ctx)
	defer pruner.Stop()

	select {
	case cutoff := <-ms.called:
		if age := time.Since(cutoff); age < 29*24*time.Hour || age > 31*24*time.Hour {
			t.Errorf("unexpected cutoff age %v", age)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not run on start")
	}

	rec, ok := ms.Latest("kiosk-front")
	if !ok || time.Since(rec.ReceivedAt) > 48*time.Hour {
		t.Errorf("recent heartbeat should survive, got %+v ok=%v", rec, ok)
	}
}

func TestHeartbeatPruner_StopIsIdempotent(t *testing.T) {
	pruner := service.NewHeartbeatPruner(memory.NewHeartbeatStore(), service.PrunerConfig{
		RetentionDays: 30,
		IntervalHours: 1,
	}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pruner.Start(ctx)

	cancel()
	pruner.Stop()
	pruner.Stop()
}
