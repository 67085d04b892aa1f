package watchdog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperloop/internal/cache"
	"github.com/aristath/paperloop/internal/columnar"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *cache.Cache) {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.Open(filepath.Join(dir, "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	store, err := columnar.Open(filepath.Join(dir, "columnar.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		PIDFilePath:    filepath.Join(dir, "trader.pid"),
		MarkerFilePath: filepath.Join(dir, "SHUTDOWN"),
		PollInterval:   time.Second,
		Thresholds:     DefaultThresholds(),
	}
	return New(cfg, nil, c, store, zerolog.Nop()), c
}

func TestGatherReflectsHeartbeatAge(t *testing.T) {
	s, c := newTestSupervisor(t)
	require.NoError(t, c.SetHeartbeat("trader", time.Minute))

	snap, err := s.gather(context.Background())
	require.NoError(t, err)
	require.Less(t, snap.HeartbeatAgeSec, 5.0)
}

func TestGatherTreatsMissingHeartbeatAsStale(t *testing.T) {
	s, _ := newTestSupervisor(t)

	snap, err := s.gather(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, snap.HeartbeatAgeSec, float64(DefaultThresholds().HeartbeatCriticalSec))
}

func TestGatherReflectsOrderSubmissionRate(t *testing.T) {
	s, c := newTestSupervisor(t)
	now := time.Now().UTC()
	require.NoError(t, c.RecordOrderSubmission(now.Add(-10*time.Second)))
	require.NoError(t, c.RecordOrderSubmission(now.Add(-5*time.Second)))
	require.NoError(t, c.RecordOrderSubmission(now.Add(-2*time.Minute))) // outside the 1-minute window

	snap, err := s.gather(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snap.OrdersSubmittedLastMin)
}

func TestTickSkipsWhenPermanentMarkerPresent(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.NoError(t, os.WriteFile(s.cfg.MarkerFilePath, []byte("test"), 0644))

	s.tick(context.Background())
	require.Equal(t, 0, s.restartAttempts)
}
