// Package config loads application configuration from environment variables
// (with .env support) following the same load order and data-directory
// resolution the teacher uses: .env -> environment -> validated defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration for the trading process. The
// watchdog process loads its own, narrower watchdogConfig (see loadConfig in
// cmd/watchdog) so the two processes never share credentials or state.
type Config struct {
	DataDir     string // base directory for the append log, columnar store, cache db
	Environment string // "paper" only; "live" fails closed
	LogLevel    string
	LogPretty   bool
	Port        int // broadcast fabric / admin API port

	BrokerAPIKey    string
	BrokerAPISecret string

	// Regime (§4.C6)
	RegimeFastWindowDays int
	RegimeSlowWindowDays int
	RegimeADXPeriod      int
	RegimeCrisisK        float64

	// Risk (§4.C8)
	RiskSizingMethod      string // fixed | vol_adjusted | kelly
	RiskBasePct           float64
	RiskMaxPct            float64
	RiskVolTargetPct      float64
	RiskMaxDailyDDPct     float64
	RiskMaxTotalDDPct     float64
	RiskMaxSectorPct      float64
	RiskCorrelationLimit  float64

	// Execution (§4.C11)
	ReconcileIntervalSec int
	FridayCutoff         string // "HH:MM" exchange-local
	ExchangeTZ           string // IANA timezone name, e.g. "America/New_York"

	// ETL (§4.C4)
	ETLBatchIntervalSec int
	ETLMaxBatchSize     int

	// Backup/archival (ambient domain stack addition)
	BackupR2AccountID       string
	BackupR2AccessKeyID     string
	BackupR2SecretAccessKey string
	BackupR2Bucket          string
	BackupIntervalHr        int
	BackupRetentionDays     int
}

// Load reads configuration from environment variables (.env first).
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	dataDir := ""
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("PAPERLOOP_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve data dir: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("config: create data dir: %w", err)
	}

	cfg := &Config{
		DataDir:     absDataDir,
		Environment: getEnv("ENVIRONMENT", "paper"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", true),
		Port:        getEnvAsInt("PORT", 8090),

		BrokerAPIKey:    getEnv("BROKER_API_KEY", ""),
		BrokerAPISecret: getEnv("BROKER_API_SECRET", ""),

		RegimeFastWindowDays: getEnvAsInt("REGIME_FAST_WINDOW_DAYS", 3),
		RegimeSlowWindowDays: getEnvAsInt("REGIME_SLOW_WINDOW_DAYS", 20),
		RegimeADXPeriod:      getEnvAsInt("REGIME_ADX_PERIOD", 14),
		RegimeCrisisK:        getEnvAsFloat("REGIME_CRISIS_K", 2.0),

		RiskSizingMethod:     getEnv("RISK_SIZING_METHOD", "fixed"),
		RiskBasePct:          getEnvAsFloat("RISK_BASE_PCT", 2.0),
		RiskMaxPct:           getEnvAsFloat("RISK_MAX_PCT", 10.0),
		RiskVolTargetPct:     getEnvAsFloat("RISK_VOL_TARGET_PCT", 15.0),
		RiskMaxDailyDDPct:    getEnvAsFloat("RISK_MAX_DAILY_DD_PCT", 3.0),
		RiskMaxTotalDDPct:    getEnvAsFloat("RISK_MAX_TOTAL_DD_PCT", 10.0),
		RiskMaxSectorPct:     getEnvAsFloat("RISK_MAX_SECTOR_PCT", 30.0),
		RiskCorrelationLimit: getEnvAsFloat("RISK_CORRELATION_LIMIT", 0.8),

		ReconcileIntervalSec: getEnvAsInt("RECONCILE_INTERVAL_SEC", 300),
		FridayCutoff:         getEnv("FRIDAY_CUTOFF", "15:55"),
		ExchangeTZ:           getEnv("EXCHANGE_TZ", "America/New_York"),

		ETLBatchIntervalSec: getEnvAsInt("ETL_BATCH_INTERVAL_SEC", 60),
		ETLMaxBatchSize:     getEnvAsInt("ETL_MAX_BATCH_SIZE", 5000),

		BackupR2AccountID:       getEnv("BACKUP_R2_ACCOUNT_ID", ""),
		BackupR2AccessKeyID:     getEnv("BACKUP_R2_ACCESS_KEY_ID", ""),
		BackupR2SecretAccessKey: getEnv("BACKUP_R2_SECRET_ACCESS_KEY", ""),
		BackupR2Bucket:          getEnv("BACKUP_R2_BUCKET", ""),
		BackupIntervalHr:        getEnvAsInt("BACKUP_INTERVAL_HOURS", 24),
		BackupRetentionDays:     getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails closed on any environment other than "paper" per spec.md §6.
func (c *Config) Validate() error {
	if c.Environment != "paper" {
		return fmt.Errorf("config: environment %q not supported, only \"paper\" is (live execution is out of scope)", c.Environment)
	}
	if _, err := time.LoadLocation(c.ExchangeTZ); err != nil {
		return fmt.Errorf("config: invalid exchange timezone %q: %w", c.ExchangeTZ, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
