package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/config"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/db"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/grpcapi"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/service"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store/guard"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store/memory"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store/postgres"
	sqlitestore "github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store/sqlite"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/httpapi"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/telemetry"
)

// backend is one wired persistence choice.
type backend struct {
	members    store.MemberStore
	plans      store.PlanStore
	billing    store.BillingStore
	ledger     store.AccessLedger
	kiosks     store.KioskStore
	heartbeats store.HeartbeatStore
	probe      func(ctx context.Context) error
	close      func()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dmgfit-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	// Breakers go around the stores a check-in depends on.
	gs := guard.Settings{Logger: logger}
	registry := service.NewKioskRegistry(be.kiosks)
	heartbeatSvc := service.NewHeartbeatService(be.heartbeats, registry)
	accessSvc := service.NewAccessService(registry, service.Stores{
		Members: guard.NewMembers(be.members, gs),
		Plans:   guard.NewPlans(be.plans, gs),
		Billing: guard.NewBilling(be.billing, gs),
		Ledger:  guard.NewLedger(be.ledger, gs),
	}, service.AccessPolicy{
		DuplicateWindow:   cfg.DuplicateWindow,
		DuplicateSameDay:  cfg.DuplicateSameDay,
		Location:          cfg.Location(),
		DecisionTimeout:   cfg.DecisionTimeout,
		RequireKnownKiosk: cfg.RequireKnownKiosk,
	}, logger)

	pruner := service.NewHeartbeatPruner(be.heartbeats, service.PrunerConfig{
		RetentionDays: cfg.HeartbeatRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           logger,
		Addr:             cfg.HTTPAddr,
		HeartbeatService: heartbeatSvc,
		AccessService:    accessSvc,
		Health:           be.probe,
		KioskRate:        cfg.KioskRatePerSecond,
		KioskBurst:       cfg.KioskBurst,
	})

	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.Store, "env", cfg.Env)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	var grpcSrv *grpcapi.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpcapi.NewServer(logger)
		go grpcSrv.Monitor(ctx, be.probe, 10*time.Second)
		go func() {
			logger.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server error", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.Shutdown(shutdownCtx)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}
	return nil
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Store {
	case "memory":
		return openMemory(cfg), nil
	case "postgres":
		return openPostgres(ctx, cfg)
	default:
		return openSQLite(ctx, cfg, logger)
	}
}

func openMemory(cfg config.Config) *backend {
	members := memory.NewMembershipStore()
	plans := memory.NewPlanCatalog()
	billing := memory.NewBillingLedger()
	memory.SeedDev(time.Now(), members, plans, billing)
	return &backend{
		members:    members,
		plans:      plans,
		billing:    billing,
		ledger:     memory.NewAccessLedger(),
		kiosks:     memory.NewKioskStore(cfg.KnownKiosks),
		heartbeats: memory.NewHeartbeatStore(),
		close:      func() {},
	}
}

func openSQLite(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return nil, err
	}
	writer := db.NewWorker(conn)
	closeAll := func() {
		writer.Close()
		_ = conn.Close()
	}

	if cfg.Dev() {
		if err := db.SeedDev(ctx, conn, db.SeedDevOptions{KnownKiosks: cfg.KnownKiosks}); err != nil {
			closeAll()
			return nil, err
		}
		logger.Info("dev seed applied", "path", cfg.DBPath)
	}

	kiosks := sqlitestore.NewKioskStore(conn, writer)
	if err := kiosks.Enable(ctx, cfg.KnownKiosks...); err != nil {
		closeAll()
		return nil, err
	}

	dir := sqlitestore.NewDirectory(conn)
	return &backend{
		members:    dir,
		plans:      dir,
		billing:    dir,
		ledger:     sqlitestore.NewAccessLedger(conn, writer),
		kiosks:     kiosks,
		heartbeats: sqlitestore.NewHeartbeatStore(conn, writer),
		probe:      pinger(conn),
		close:      closeAll,
	}, nil
}

func openPostgres(ctx context.Context, cfg config.Config) (*backend, error) {
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	kiosks := postgres.NewKioskStore(pool)
	if err := kiosks.Enable(ctx, cfg.KnownKiosks...); err != nil {
		pool.Close()
		return nil, err
	}

	dir := postgres.NewDirectory(pool)
	return &backend{
		members:    dir,
		plans:      dir,
		billing:    dir,
		ledger:     postgres.NewAccessLedger(pool),
		kiosks:     kiosks,
		heartbeats: postgres.NewHeartbeatStore(pool),
		probe:      pool.Ping,
		close:      pool.Close,
	}, nil
}

func pinger(conn *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error { return conn.PingContext(ctx) }
}

// newLogger emits JSON in prod and text in dev.
func newLogger(cfg config.Config) *slog.Logger {
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Dev() {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", cfg.ServiceName)
}
