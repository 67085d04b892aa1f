package etl

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperloop/internal/appendlog"
	"github.com/aristath/paperloop/internal/columnar"
	"github.com/aristath/paperloop/internal/domain"
)

func TestRunOnceInsertsBarsAndCountsUnknown(t *testing.T) {
	dir := t.TempDir()
	alog, err := appendlog.Open(appendlog.Config{Dir: dir}, zerolog.Nop())
	require.NoError(t, err)
	defer alog.Close()

	store, err := columnar.Open(filepath.Join(dir, "columnar.db"), zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	barEvt, err := domain.NewEvent(domain.EventBar, "test", nil, map[string]interface{}{
		"symbol": "AAPL", "timeframe": "1d",
		"open": 100.0, "high": 101.0, "low": 99.0, "close": 100.5, "volume": 1000.0,
		"tier": 3.0,
	})
	require.NoError(t, err)
	require.NoError(t, alog.Write(barEvt))

	quoteEvt, err := domain.NewEvent(domain.EventQuote, "test", nil, map[string]interface{}{"price": 100.0})
	require.NoError(t, err)
	require.NoError(t, alog.Write(quoteEvt))

	pipeline := New(alog, store, zerolog.Nop())
	summary, err := pipeline.RunOnce()
	require.NoError(t, err)
	require.Equal(t, 2, summary.EventsProcessed)
	require.Equal(t, 1, summary.BarsInserted)
	require.Equal(t, 1, summary.UnknownKinds)
	require.Equal(t, 0, summary.Errors)
}

func TestRunOnceIsIdempotentViaUpsert(t *testing.T) {
	dir := t.TempDir()
	alog, err := appendlog.Open(appendlog.Config{Dir: dir}, zerolog.Nop())
	require.NoError(t, err)
	defer alog.Close()

	store, err := columnar.Open(filepath.Join(dir, "columnar.db"), zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	barEvt, err := domain.NewEvent(domain.EventBar, "test", nil, map[string]interface{}{
		"symbol": "AAPL", "timeframe": "1d",
		"open": 100.0, "high": 101.0, "low": 99.0, "close": 100.5, "volume": 1000.0,
		"tier": 3.0,
	})
	require.NoError(t, err)
	require.NoError(t, alog.Write(barEvt))

	pipeline := New(alog, store, zerolog.Nop())
	_, err = pipeline.RunOnce()
	require.NoError(t, err)
	_, err = pipeline.RunOnce()
	require.NoError(t, err)

	bars, err := store.BarsRange("AAPL", "1d", barEvt.Timestamp.Add(-1), barEvt.Timestamp.Add(1))
	require.NoError(t, err)
	require.Len(t, bars, 1)
}
