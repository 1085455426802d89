package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
)

// HeartbeatPruner periodically deletes kiosk heartbeats older than a
// retention period. It never touches the access ledger.
//
// A retention of 0 disables pruning entirely.
type HeartbeatPruner struct {
	store     store.HeartbeatStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewHeartbeatPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of heartbeat history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// NewHeartbeatPruner creates a pruner but does not start it.
func NewHeartbeatPruner(s store.HeartbeatStore, cfg PrunerConfig, logger *slog.Logger) *HeartbeatPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HeartbeatPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger.With("component", "heartbeat_pruner"),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start runs an immediate prune, then repeats on the configured interval
// until ctx is cancelled or Stop is called.
func (p *HeartbeatPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("heartbeat pruner disabled", "retention_days", 0)
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("heartbeat pruner started",
		"retention_days", int(p.retention.Hours()/24),
		"interval", p.interval.String(),
	)
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *HeartbeatPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *HeartbeatPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *HeartbeatPruner) prune(ctx context.Context) {
	cutoff := p.now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("heartbeat prune failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("heartbeat prune",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}
}
