package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/paperloop/internal/domain"
)

func newTestOrder(clientID string) domain.Order {
	return domain.Order{
		ClientOrderID: clientID, Symbol: "AAPL", Side: domain.SideBuy,
		Quantity: 10, Type: domain.OrderTypeLimit, StrategyTag: "ema_crossover",
	}
}

func TestTransitionFollowsWhitelist(t *testing.T) {
	m := NewManager()
	m.Create(newTestOrder("c1"))

	require.NoError(t, m.Transition("c1", domain.OrderSubmitted, 0, 0))
	require.NoError(t, m.Transition("c1", domain.OrderPartialFill, 4, 101.5))
	require.NoError(t, m.Transition("c1", domain.OrderFilled, 6, 102.0))

	o, err := m.GetByClientID("c1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderFilled, o.Status)
	require.Equal(t, 10.0, o.FilledQty)
}

func TestTransitionRejectsIllegalJumpWithTypedError(t *testing.T) {
	m := NewManager()
	m.Create(newTestOrder("c2"))

	err := m.Transition("c2", domain.OrderFilled, 10, 100)
	require.Error(t, err)
	var invalid *ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, domain.OrderPending, invalid.From)
}

func TestTerminalStatesRejectAnyFurtherTransition(t *testing.T) {
	m := NewManager()
	m.Create(newTestOrder("c3"))
	require.NoError(t, m.Transition("c3", domain.OrderSubmitted, 0, 0))
	require.NoError(t, m.Transition("c3", domain.OrderCancelled, 0, 0))

	err := m.Transition("c3", domain.OrderFilled, 10, 100)
	require.Error(t, err)
}

func TestUnknownTransitionsAreReconcilerOnlyByConvention(t *testing.T) {
	m := NewManager()
	m.Create(newTestOrder("c4"))
	require.NoError(t, m.Transition("c4", domain.OrderSubmitted, 0, 0))
	require.NoError(t, m.Transition("c4", domain.OrderUnknown, 0, 0))
	require.NoError(t, m.Transition("c4", domain.OrderFilled, 10, 100))
}

func TestAttachBrokerIDAndLookupByBrokerID(t *testing.T) {
	m := NewManager()
	m.Create(newTestOrder("c5"))
	require.NoError(t, m.AttachBrokerID("c5", "broker-123"))

	o, err := m.GetByBrokerID("broker-123")
	require.NoError(t, err)
	require.Equal(t, "c5", o.ClientOrderID)
}

func TestGetOpenOrdersExcludesTerminal(t *testing.T) {
	m := NewManager()
	m.Create(newTestOrder("open1"))
	m.Create(newTestOrder("closed1"))
	require.NoError(t, m.Transition("closed1", domain.OrderSubmitted, 0, 0))
	require.NoError(t, m.Transition("closed1", domain.OrderFilled, 10, 100))

	open := m.GetOpenOrders()
	require.Len(t, open, 1)
	require.Equal(t, "open1", open[0].ClientOrderID)
}

func TestGetOrdersBySymbol(t *testing.T) {
	m := NewManager()
	m.Create(newTestOrder("s1"))
	o2 := newTestOrder("s2")
	o2.Symbol = "MSFT"
	m.Create(o2)

	aapl := m.GetOrdersBySymbol("AAPL")
	require.Len(t, aapl, 1)
}

func TestCreateSetsTimestamps(t *testing.T) {
	m := NewManager()
	before := time.Now().UTC()
	m.Create(newTestOrder("t1"))
	o, err := m.GetByClientID("t1")
	require.NoError(t, err)
	require.False(t, o.CreatedAt.Before(before.Add(-time.Second)))
}
