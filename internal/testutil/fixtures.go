// Package testutil provides canned fixtures and a thread-safe fake Broker
// for use across the test suite, in the style of the teacher's own
// internal/testing fixtures/mocks pair.
package testutil

import (
	"time"

	"github.com/aristath/paperloop/internal/domain"
)

// NewBarFixtures returns a short, internally consistent daily OHLCV series
// for AAPL, oldest first, suitable for feeding the regime detector or a
// strategy under test.
func NewBarFixtures() []domain.Bar {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 101, 99, 102, 105, 104, 106, 108, 107, 110}

	bars := make([]domain.Bar, 0, len(closes))
	prevClose := 100.0
	for i, c := range closes {
		open := prevClose
		high := max(open, c) + 0.5
		low := min(open, c) - 0.5
		bars = append(bars, domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Symbol:    "AAPL",
			Timeframe: "1d",
			Open:      open,
			High:      high,
			Low:       low,
			Close:     c,
			Volume:    1_000_000,
			Tier:      domain.Tier3Live,
			Adjusted:  true,
		})
		prevClose = c
	}
	return bars
}

// NewPositionFixtures returns a small book of two long positions.
func NewPositionFixtures() []domain.Position {
	now := time.Now().UTC()
	return []domain.Position{
		{Symbol: "AAPL", Quantity: 10, AvgPrice: 150, MarketValue: 1600, UnrealizedPL: 100, Side: domain.SideBuy, UpdatedAt: now},
		{Symbol: "MSFT", Quantity: 5, AvgPrice: 300, MarketValue: 1900, UnrealizedPL: 400, Side: domain.SideBuy, UpdatedAt: now},
	}
}

// NewOrderFixture returns a single pending order for symbol, ready to hand
// to an internal/orders.Manager via Create.
func NewOrderFixture(symbol, clientID string) domain.Order {
	return domain.Order{
		ClientOrderID: clientID,
		Symbol:        symbol,
		Side:          domain.SideBuy,
		Quantity:      10,
		Type:          domain.OrderTypeMarket,
		Status:        domain.OrderPending,
	}
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
