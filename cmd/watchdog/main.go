// Command watchdog runs the Watchdog (C13) as a process wholly separate
// from the trading process. It never imports internal/config: it loads
// its own environment variables directly so a corrupt or missing trading
// configuration can never stop it from evaluating kill rules and, if
// necessary, stopping the trader.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/paperloop/internal/cache"
	"github.com/aristath/paperloop/internal/columnar"
	"github.com/aristath/paperloop/internal/watchdog"
	"github.com/aristath/paperloop/pkg/logger"
)

type watchdogConfig struct {
	dataDir      string
	logLevel     string
	logPretty    bool
	pollInterval time.Duration
}

func loadConfig() watchdogConfig {
	_ = godotenv.Load()

	dataDir := os.Getenv("PAPERLOOP_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		absDataDir = dataDir
	}

	return watchdogConfig{
		dataDir:      absDataDir,
		logLevel:     envOr("WATCHDOG_LOG_LEVEL", "info"),
		logPretty:    envOrBool("WATCHDOG_LOG_PRETTY", true),
		pollInterval: time.Duration(envOrInt("WATCHDOG_POLL_INTERVAL_SEC", 15)) * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func main() {
	wcfg := loadConfig()
	log := logger.New(logger.Config{Level: wcfg.logLevel, Pretty: wcfg.logPretty})
	log.Info().Str("data_dir", wcfg.dataDir).Msg("starting watchdog")

	store, err := columnar.OpenReadOnly(filepath.Join(wcfg.dataDir, "columnar.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("open columnar store")
	}
	defer store.Close()

	liveCache, err := cache.Open(filepath.Join(wcfg.dataDir, "cache.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("open live state cache")
	}
	defer liveCache.Close()

	sup := watchdog.New(watchdog.Config{
		PIDFilePath:    filepath.Join(wcfg.dataDir, "trader.pid"),
		MarkerFilePath: filepath.Join(wcfg.dataDir, "SHUTDOWN"),
		PollInterval:   wcfg.pollInterval,
		Thresholds:     watchdog.DefaultThresholds(),
	}, nil, liveCache, store, log)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("watchdog shutting down")
		cancel()
	}()

	sup.Run(ctx)
	log.Info().Msg("watchdog stopped")
}
