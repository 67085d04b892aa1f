// Package broker implements the Broker Gateway (C5): a uniform interface
// over a live broker or a paper-broker simulator. client_id is the
// idempotency key and every implementation MUST attach it to submissions.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/paperloop/internal/domain"
)

// ErrOrderNotFound is returned by GetOrderByClientID / CancelOrder when the
// broker has no record of the order.
var ErrOrderNotFound = errors.New("broker: order not found")

// Account is the broker-reported account snapshot.
type Account struct {
	Equity      float64
	Cash        float64
	BuyingPower float64
}

// Clock reports whether the market is open and the surrounding session
// boundaries.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// OrderStatus is the broker's own status vocabulary, distinct from
// domain.OrderStatus; internal/reconcile maps one to the other (§4.C10).
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusAccepted        OrderStatus = "accepted"
	StatusPendingNew      OrderStatus = "pending_new"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// Order is the broker's representation of a submitted order.
type Order struct {
	ID              string
	ClientOrderID   string
	Symbol          string
	Side            domain.Side
	Quantity        float64
	Type            domain.OrderType
	LimitPrice      *float64
	Status          OrderStatus
	FilledQty       float64
	FilledAvgPrice  float64
	CreatedAt       time.Time
}

// Broker is the uniform surface the Trading Loop, Order Manager and
// Reconciler depend on. Both the Paper simulator and a future live adapter
// implement it identically.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetClock(ctx context.Context) (Clock, error)
	ListPositions(ctx context.Context) ([]domain.Position, error)
	ListOrders(ctx context.Context, status OrderStatus, limit int) ([]Order, error)
	SubmitLimitOrder(ctx context.Context, symbol string, qty float64, side domain.Side, limitPrice float64, clientID string) (Order, error)
	SubmitMarketOrder(ctx context.Context, symbol string, qty float64, side domain.Side, clientID string) (Order, error)
	CancelOrder(ctx context.Context, id string) error
	CancelAllOrders(ctx context.Context) error
	ClosePosition(ctx context.Context, symbol string) error
	CloseAllPositions(ctx context.Context) error
	GetOrderByClientID(ctx context.Context, clientID string) (*Order, error)
}
