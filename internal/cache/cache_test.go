package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperloop/internal/domain"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPingAndPosition(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Ping())

	pos := domain.Position{Symbol: "AAPL", Quantity: 10, AvgPrice: 150, Side: domain.SideBuy, UpdatedAt: time.Now().UTC()}
	require.NoError(t, c.SetPosition(pos))

	got, err := c.GetPosition("AAPL")
	require.NoError(t, err)
	require.Equal(t, 10.0, got.Quantity)
}

func TestSyncPositionsReplacesWholesale(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.SetPosition(domain.Position{Symbol: "AAPL", Quantity: 10}))
	require.NoError(t, c.SetPosition(domain.Position{Symbol: "MSFT", Quantity: 5}))

	require.NoError(t, c.SyncPositions([]domain.Position{{Symbol: "AAPL", Quantity: 20}}))

	aapl, err := c.GetPosition("AAPL")
	require.NoError(t, err)
	require.Equal(t, 20.0, aapl.Quantity)

	_, err = c.GetPosition("MSFT")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHeartbeatTTLExpires(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.SetHeartbeat("trader", -1*time.Second))

	_, err := c.GetHeartbeat("trader")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetZombieOrders(t *testing.T) {
	c := newTestCache(t)
	old := domain.Order{
		ClientOrderID: "c1",
		Status:        domain.OrderSubmitted,
		CreatedAt:     time.Now().UTC().Add(-10 * time.Minute),
	}
	fresh := domain.Order{
		ClientOrderID: "c2",
		Status:        domain.OrderSubmitted,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, c.SetOrder(old))
	require.NoError(t, c.SetOrder(fresh))

	zombies, err := c.GetZombieOrders(5 * time.Minute)
	require.NoError(t, err)
	require.Len(t, zombies, 1)
	require.Equal(t, "c1", zombies[0].ClientOrderID)
}

func TestOrderSubmissionCountSinceWindow(t *testing.T) {
	c := newTestCache(t)
	now := time.Now().UTC()

	require.NoError(t, c.RecordOrderSubmission(now.Add(-90*time.Second)))
	require.NoError(t, c.RecordOrderSubmission(now.Add(-30*time.Second)))
	require.NoError(t, c.RecordOrderSubmission(now))

	count, err := c.CountOrderSubmissionsSince(now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestOrderSubmissionCountWithNoneRecordedIsZero(t *testing.T) {
	c := newTestCache(t)
	count, err := c.CountOrderSubmissionsSince(time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestStateBlobRoundtrip(t *testing.T) {
	c := newTestCache(t)
	type indicatorState struct {
		ATR float64
		ADX float64
	}
	require.NoError(t, c.SetStateBlob("indicators:AAPL:1d", indicatorState{ATR: 1.23, ADX: 25.5}))

	var got indicatorState
	require.NoError(t, c.GetStateBlob("indicators:AAPL:1d", &got))
	require.Equal(t, 1.23, got.ATR)
	require.Equal(t, 25.5, got.ADX)
}
