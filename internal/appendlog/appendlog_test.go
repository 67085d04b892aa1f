package appendlog

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperloop/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestWriteAndReadAll(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Config{Dir: dir}, testLogger())
	require.NoError(t, err)
	defer l.Close()

	evt, err := domain.NewEvent(domain.EventHeartbeat, "test", nil, map[string]interface{}{"n": 1})
	require.NoError(t, err)
	require.NoError(t, l.Write(evt))

	events, err := l.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, evt.ID, events[0].ID)
}

func TestConcurrentWritesNeverInterleave(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Config{Dir: dir}, testLogger())
	require.NoError(t, err)
	defer l.Close()

	const writers = 20
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				evt, err := domain.NewEvent(domain.EventQuote, fmt.Sprintf("writer-%d", w), nil, map[string]interface{}{"i": i})
				require.NoError(t, err)
				require.NoError(t, l.Write(evt))
			}
		}(w)
	}
	wg.Wait()

	events, err := l.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, writers*perWriter)

	seen := make(map[string]bool, len(events))
	for _, e := range events {
		require.False(t, seen[e.ID], "duplicate or interleaved event id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestReadAllSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Config{Dir: dir}, testLogger())
	require.NoError(t, err)

	evt, err := domain.NewEvent(domain.EventBar, "test", nil, nil)
	require.NoError(t, err)
	require.NoError(t, l.Write(evt))
	require.NoError(t, l.Close())

	// Append a corrupt line directly.
	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l2, err := Open(Config{Dir: dir}, testLogger())
	require.NoError(t, err)
	defer l2.Close()

	events, err := l2.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 1)
}
