// Command trader runs the paper-trading process: it owns the Append Log,
// Columnar Store, Live State Cache, Broker Gateway and Trading Loop, and
// exposes the Broadcast Fabric over websocket. The Watchdog is a separate
// process (cmd/watchdog) that supervises this one over the cache, the
// columnar store, the PID file and OS signals.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/paperloop/internal/appendlog"
	"github.com/aristath/paperloop/internal/backup"
	"github.com/aristath/paperloop/internal/broadcast"
	"github.com/aristath/paperloop/internal/broker"
	"github.com/aristath/paperloop/internal/cache"
	"github.com/aristath/paperloop/internal/columnar"
	"github.com/aristath/paperloop/internal/config"
	"github.com/aristath/paperloop/internal/etl"
	"github.com/aristath/paperloop/internal/events"
	"github.com/aristath/paperloop/internal/orders"
	"github.com/aristath/paperloop/internal/pidfile"
	"github.com/aristath/paperloop/internal/reconcile"
	"github.com/aristath/paperloop/internal/regime"
	"github.com/aristath/paperloop/internal/risk"
	"github.com/aristath/paperloop/internal/strategy"
	"github.com/aristath/paperloop/internal/tradingloop"
	"github.com/aristath/paperloop/pkg/logger"
)

const initialPaperEquity = 100_000.0

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "trader: config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Str("data_dir", cfg.DataDir).Msg("starting trader")

	pidPath := filepath.Join(cfg.DataDir, "trader.pid")
	markerPath := filepath.Join(cfg.DataDir, "SHUTDOWN")
	if pidfile.MarkerExists(markerPath) {
		log.Error().Msg("permanent shutdown marker present, refusing to start; remove it manually after investigating")
		os.Exit(1)
	}
	if err := pidfile.Write(pidPath, os.Getpid()); err != nil {
		log.Error().Err(err).Msg("could not write pid file")
		os.Exit(1)
	}
	defer pidfile.Remove(pidPath)

	appendLog, err := appendlog.Open(appendlog.Config{
		Dir:          cfg.DataDir,
		MaxSizeBytes: 64 << 20,
		Retention:    10,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open append log")
	}
	defer appendLog.Close()

	store, err := columnar.Open(filepath.Join(cfg.DataDir, "columnar.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("open columnar store")
	}
	defer store.Close()

	liveCache, err := cache.Open(filepath.Join(cfg.DataDir, "cache.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("open live state cache")
	}
	defer liveCache.Close()

	if _, err := liveCache.GetInitialEquity(); err != nil {
		if err := liveCache.SetInitialEquity(initialPaperEquity); err != nil {
			log.Fatal().Err(err).Msg("seed initial equity")
		}
	}

	exchangeLoc, err := time.LoadLocation(cfg.ExchangeTZ)
	if err != nil {
		log.Fatal().Err(err).Msg("load exchange timezone")
	}

	pb := broker.NewPaper(initialPaperEquity, exchangeLoc)

	etlPipeline := etl.New(appendLog, store, log)
	orderManager := orders.NewManager()
	reconciler := reconcile.New(pb, orderManager, liveCache, log)
	regimeDetector := regime.New(regime.Config{
		FastWindowDays: cfg.RegimeFastWindowDays,
		SlowWindowDays: cfg.RegimeSlowWindowDays,
		ADXPeriod:      cfg.RegimeADXPeriod,
		CrisisK:        cfg.RegimeCrisisK,
		ADXChoppyMax:   20,
		ADXStrongMin:   25,
		VolLowPctile:   0.20,
		VolHighPctile:  0.80,
	})

	registry := strategy.NewRegistry()
	registry.Register(strategy.NewEMACrossover("ema_crossover", 12, 26))
	registry.Register(strategy.NewRSIMeanReversion("rsi_mean_reversion", 14, 30, 70))

	sizingCfg := risk.SizingConfig{
		Method:        risk.SizingMethod(cfg.RiskSizingMethod),
		BasePct:       cfg.RiskBasePct,
		MaxPct:        cfg.RiskMaxPct,
		MinPct:        0.5,
		TargetVolPct:  cfg.RiskVolTargetPct,
		KellyFraction: 0.25,
	}
	drawdownCfg := risk.DrawdownConfig{
		DailyLimitPct: cfg.RiskMaxDailyDDPct,
		TotalLimitPct: cfg.RiskMaxTotalDDPct,
	}

	bus := events.NewBus()
	symbols := []string{"AAPL", "MSFT"}

	loop := tradingloop.New(tradingloop.Config{
		TickInterval:      time.Second,
		ETLInterval:       time.Duration(cfg.ETLBatchIntervalSec) * time.Second,
		ReconcileInterval: time.Duration(cfg.ReconcileIntervalSec) * time.Second,
		FridayCutoff:      cfg.FridayCutoff,
		ExchangeLocation:  exchangeLoc,
		Symbols:           symbols,
		Timeframe:         "1d",
		BarsLookback:      cfg.RegimeSlowWindowDays * 2,
	}, tradingloop.Deps{
		Broker:    pb,
		Store:     store,
		Cache:     liveCache,
		ETL:       etlPipeline,
		Reconcile: reconciler,
		Regime:    regimeDetector,
		Registry:  registry,
		Sizing:    sizingCfg,
		Drawdown:  drawdownCfg,
		Orders:    orderManager,
		Bus:       bus,
	}, initialPaperEquity, log)

	fabric := broadcast.New(log)
	sampler := broadcast.NewSampler(liveCache, fabric, symbols, 2*time.Second, log)
	server := broadcast.NewServer(cfg.Port, fabric, log)

	ctx, cancel := context.WithCancel(context.Background())

	go loop.Run(ctx)
	go sampler.Run(ctx)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("broadcast server stopped")
		}
	}()

	if scheduler := buildBackupScheduler(ctx, cfg, appendLog, log); scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down: cancelling orders and flattening positions")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pb.CancelAllOrders(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("cancel all orders on shutdown")
	}
	if err := pb.CloseAllPositions(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("close all positions on shutdown")
	}
	shutdownCancel()

	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("broadcast server shutdown")
	}
	if err := appendLog.Sync(); err != nil {
		log.Error().Err(err).Msg("final append log sync")
	}
	log.Info().Msg("trader stopped")
}

// buildBackupScheduler wires R2 cold-storage backups if credentials are
// configured; backups are optional, matching the teacher's posture of
// running without cloud backup when no credentials are present.
func buildBackupScheduler(ctx context.Context, cfg *config.Config, appendLog *appendlog.Log, log zerolog.Logger) *backup.Scheduler {
	if cfg.BackupR2AccountID == "" || cfg.BackupR2AccessKeyID == "" || cfg.BackupR2SecretAccessKey == "" || cfg.BackupR2Bucket == "" {
		log.Debug().Msg("r2 backup credentials not configured, backup disabled")
		return nil
	}

	r2, err := backup.NewR2Client(ctx, cfg.BackupR2AccountID, cfg.BackupR2AccessKeyID, cfg.BackupR2SecretAccessKey, cfg.BackupR2Bucket, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize r2 client, backup disabled")
		return nil
	}

	segments, _ := filepath.Glob(filepath.Join(cfg.DataDir, "events.jsonl.*.gz"))
	svc := backup.NewService(backup.Config{
		StagingDir:        filepath.Join(cfg.DataDir, "backup-staging"),
		AppendLogSegments: segments,
		ColumnarDBPath:    filepath.Join(cfg.DataDir, "columnar.db"),
		CacheDBPath:       filepath.Join(cfg.DataDir, "cache.db"),
		RetentionDays:     cfg.BackupRetentionDays,
	}, r2, log)

	scheduler, err := backup.NewScheduler(svc, cfg.BackupIntervalHr, log)
	if err != nil {
		log.Warn().Err(err).Msg("failed to schedule backups, backup disabled")
		return nil
	}
	return scheduler
}
