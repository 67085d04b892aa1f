package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/paperloop/internal/domain"
)

func TestSubmitLimitOrderFillsAtLimitPrice(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(100000, time.UTC)

	order, err := p.SubmitLimitOrder(ctx, "AAPL", 10, domain.SideBuy, 150.0, "c1")
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	require.Equal(t, 150.0, order.FilledAvgPrice)

	positions, err := p.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, 10.0, positions[0].Quantity)
}

func TestSubmitMarketOrderRequiresKnownPrice(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(100000, time.UTC)

	_, err := p.SubmitMarketOrder(ctx, "AAPL", 10, domain.SideBuy, "c1")
	require.Error(t, err)

	p.SetPrice("AAPL", 100.0)
	order, err := p.SubmitMarketOrder(ctx, "AAPL", 10, domain.SideBuy, "c2")
	require.NoError(t, err)
	require.Greater(t, order.FilledAvgPrice, 100.0) // buy fills above mid
}

func TestCloseAllPositionsFlattensBook(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(100000, time.UTC)
	p.SetPrice("AAPL", 100.0)

	_, err := p.SubmitMarketOrder(ctx, "AAPL", 10, domain.SideBuy, "c1")
	require.NoError(t, err)

	require.NoError(t, p.CloseAllPositions(ctx))

	positions, err := p.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 0)
}

func TestGetOrderByClientIDIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(100000, time.UTC)

	_, err := p.SubmitLimitOrder(ctx, "AAPL", 10, domain.SideBuy, 150.0, "c1")
	require.NoError(t, err)

	order, err := p.GetOrderByClientID(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "c1", order.ClientOrderID)

	_, err = p.GetOrderByClientID(ctx, "nonexistent")
	require.ErrorIs(t, err, ErrOrderNotFound)
}
