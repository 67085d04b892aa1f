package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventRejectsUnknownKind(t *testing.T) {
	_, err := NewEvent(EventKind("not-a-kind"), "etl", nil, nil)
	assert.Error(t, err)
}

func TestNewEventAssignsIDAndTimestamp(t *testing.T) {
	before := time.Now().UTC()
	evt, err := NewEvent(EventBar, "etl", nil, map[string]interface{}{"close": 101.5})
	require.NoError(t, err)

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, EventBar, evt.Type)
	assert.Equal(t, "etl", evt.Source)
	assert.False(t, evt.Timestamp.Before(before))
}

func validBar() Bar {
	return Bar{
		Symbol: "AAPL", Timeframe: "1d",
		Open: 100, High: 102, Low: 99, Close: 101, Volume: 1000,
	}
}

func TestBarValidateAcceptsConsistentOHLC(t *testing.T) {
	assert.NoError(t, validBar().Validate())
}

func TestBarValidateRejectsNonPositivePrice(t *testing.T) {
	b := validBar()
	b.Open = 0
	assert.Error(t, b.Validate())
}

func TestBarValidateRejectsNegativeVolume(t *testing.T) {
	b := validBar()
	b.Volume = -1
	assert.Error(t, b.Validate())
}

func TestBarValidateRejectsHighBelowOthers(t *testing.T) {
	b := validBar()
	b.High = 50
	assert.Error(t, b.Validate())
}

func TestBarValidateRejectsLowAboveOthers(t *testing.T) {
	b := validBar()
	b.Low = 150
	assert.Error(t, b.Validate())
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "0-universe", Tier0Universe.String())
	assert.Equal(t, "3-live", Tier3Live.String())
	assert.Equal(t, "tier(99)", Tier(99).String())
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderFilled.Terminal())
	assert.True(t, OrderCancelled.Terminal())
	assert.True(t, OrderFailed.Terminal())
	assert.False(t, OrderPending.Terminal())
	assert.False(t, OrderSubmitted.Terminal())
	assert.False(t, OrderPartialFill.Terminal())
}
