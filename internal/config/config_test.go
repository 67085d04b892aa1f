package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		original, had := os.LookupEnv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, original)
			} else {
				os.Unsetenv(k)
			}
		})
		require.NoError(t, os.Setenv(k, v))
	}
}

func TestLoadResolvesDataDirToAbsolutePath(t *testing.T) {
	tmpDir := t.TempDir()
	withEnv(t, map[string]string{
		"PAPERLOOP_DATA_DIR": tmpDir,
		"ENVIRONMENT":        "paper",
	})

	cfg, err := Load()
	require.NoError(t, err)

	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, absPath, cfg.DataDir)
}

func TestLoadAppliesDefaults(t *testing.T) {
	withEnv(t, map[string]string{
		"PAPERLOOP_DATA_DIR": t.TempDir(),
	})
	for _, k := range []string{"RISK_BASE_PCT", "RECONCILE_INTERVAL_SEC", "EXCHANGE_TZ"} {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.RiskBasePct)
	assert.Equal(t, 300, cfg.ReconcileIntervalSec)
	assert.Equal(t, "America/New_York", cfg.ExchangeTZ)
}

func TestValidateRejectsNonPaperEnvironment(t *testing.T) {
	withEnv(t, map[string]string{
		"PAPERLOOP_DATA_DIR": t.TempDir(),
		"ENVIRONMENT":        "live",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	withEnv(t, map[string]string{
		"PAPERLOOP_DATA_DIR": t.TempDir(),
		"EXCHANGE_TZ":        "Not/A_Timezone",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exchange timezone")
}
