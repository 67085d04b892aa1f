package tradingloop

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPastFridayCutoffDetectsCutoffCrossing(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	l := &Loop{cfg: Config{FridayCutoff: "15:55", ExchangeLocation: loc}, log: zerolog.Nop()}

	before := time.Date(2026, 1, 2, 15, 0, 0, 0, loc) // Friday
	after := time.Date(2026, 1, 2, 16, 0, 0, 0, loc)
	notFriday := time.Date(2026, 1, 5, 16, 0, 0, 0, loc) // Monday

	require.False(t, l.pastFridayCutoff(before))
	require.True(t, l.pastFridayCutoff(after))
	require.False(t, l.pastFridayCutoff(notFriday))
}
