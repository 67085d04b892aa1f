package columnar

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperloop/internal/domain"
)

func testBar(symbol string, ts time.Time, tier domain.Tier) domain.Bar {
	return domain.Bar{
		Timestamp: ts,
		Symbol:    symbol,
		Timeframe: "1d",
		Open:      100, High: 101, Low: 99, Close: 100.5, Volume: 1000,
		Tier: tier,
	}
}

func TestUpsertAndRangeExcludesTier0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columnar.db")
	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertBar(testBar("AAPL", base, domain.Tier0Universe)))
	require.NoError(t, store.UpsertBar(testBar("AAPL", base.AddDate(0, 0, 1), domain.Tier3Live)))

	bars, err := store.BarsRange("AAPL", "1d", base.AddDate(0, 0, -1), base.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.Equal(t, domain.Tier3Live, bars[0].Tier)
}

func TestForBacktestBarsRejectsTier0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columnar.db")
	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertBar(testBar("AAPL", base, domain.Tier0Universe)))

	_, err = store.ForBacktestBars("AAPL", "1d", base.AddDate(0, 0, -1), base.AddDate(0, 0, 5))
	require.ErrorIs(t, err, ErrTierViolation)
}

func TestForBacktestBarsRejectsMixedTiers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columnar.db")
	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertBar(testBar("AAPL", base, domain.Tier1Validation)))
	require.NoError(t, store.UpsertBar(testBar("AAPL", base.AddDate(0, 0, 1), domain.Tier3Live)))

	_, err = store.ForBacktestBars("AAPL", "1d", base.AddDate(0, 0, -1), base.AddDate(0, 0, 5))
	require.ErrorIs(t, err, ErrTierViolation)
}

func TestReadOnlyStoreRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columnar.db")
	store, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	ro, err := OpenReadOnly(path, zerolog.Nop())
	require.NoError(t, err)
	defer ro.Close()

	err = ro.UpsertBar(testBar("AAPL", time.Now(), domain.Tier1Validation))
	require.ErrorIs(t, err, ErrReadOnly)
}
