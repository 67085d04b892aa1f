package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/paperloop/internal/broker"
	"github.com/aristath/paperloop/internal/domain"
)

// FakeBroker is a thread-safe, fully in-memory broker.Broker for use in
// tests that need to drive the Trading Loop, Order Manager or Reconciler
// without a real Paper simulator.
type FakeBroker struct {
	mu sync.RWMutex

	account   broker.Account
	clock     broker.Clock
	positions []domain.Position
	orders    map[string]broker.Order // keyed by ClientOrderID

	submitErr error
	queryErr  error
}

// NewFakeBroker returns a FakeBroker reporting an open market and the given
// starting equity.
func NewFakeBroker(equity float64) *FakeBroker {
	return &FakeBroker{
		account: broker.Account{Equity: equity, Cash: equity, BuyingPower: equity},
		clock:   broker.Clock{Timestamp: time.Now().UTC(), IsOpen: true},
		orders:  make(map[string]broker.Order),
	}
}

// SetAccount overrides the account snapshot returned by GetAccount.
func (f *FakeBroker) SetAccount(a broker.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = a
}

// SetClock overrides the clock snapshot returned by GetClock.
func (f *FakeBroker) SetClock(c broker.Clock) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = c
}

// SetPositions overrides the book returned by ListPositions.
func (f *FakeBroker) SetPositions(p []domain.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = p
}

// SetSubmitError makes every subsequent SubmitLimitOrder/SubmitMarketOrder
// call fail with err.
func (f *FakeBroker) SetSubmitError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// SetQueryError makes every subsequent GetOrderByClientID call fail with err.
func (f *FakeBroker) SetQueryError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

// SetOrderStatus lets a test move an already-submitted order to any broker
// status, simulating a fill or rejection observed on the next poll.
func (f *FakeBroker) SetOrderStatus(clientID string, status broker.OrderStatus, filledQty, filledAvgPrice float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[clientID]
	if !ok {
		return
	}
	o.Status = status
	o.FilledQty = filledQty
	o.FilledAvgPrice = filledAvgPrice
	f.orders[clientID] = o
}

func (f *FakeBroker) GetAccount(_ context.Context) (broker.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.account, nil
}

func (f *FakeBroker) GetClock(_ context.Context) (broker.Clock, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clock, nil
}

func (f *FakeBroker) ListPositions(_ context.Context) ([]domain.Position, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.positions, nil
}

func (f *FakeBroker) ListOrders(_ context.Context, status broker.OrderStatus, limit int) ([]broker.Order, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []broker.Order
	for _, o := range f.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeBroker) SubmitLimitOrder(_ context.Context, symbol string, qty float64, side domain.Side, limitPrice float64, clientID string) (broker.Order, error) {
	return f.submit(symbol, qty, side, domain.OrderTypeLimit, &limitPrice, clientID)
}

func (f *FakeBroker) SubmitMarketOrder(_ context.Context, symbol string, qty float64, side domain.Side, clientID string) (broker.Order, error) {
	return f.submit(symbol, qty, side, domain.OrderTypeMarket, nil, clientID)
}

func (f *FakeBroker) submit(symbol string, qty float64, side domain.Side, typ domain.OrderType, limitPrice *float64, clientID string) (broker.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return broker.Order{}, f.submitErr
	}
	o := broker.Order{
		ID:            "broker-" + clientID,
		ClientOrderID: clientID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		Type:          typ,
		LimitPrice:    limitPrice,
		Status:        broker.StatusAccepted,
		CreatedAt:     time.Now().UTC(),
	}
	f.orders[clientID] = o
	return o, nil
}

func (f *FakeBroker) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for clientID, o := range f.orders {
		if o.ID == id || clientID == id {
			o.Status = broker.StatusCanceled
			f.orders[clientID] = o
			return nil
		}
	}
	return broker.ErrOrderNotFound
}

func (f *FakeBroker) CancelAllOrders(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for clientID, o := range f.orders {
		if o.Status == broker.StatusNew || o.Status == broker.StatusAccepted || o.Status == broker.StatusPendingNew {
			o.Status = broker.StatusCanceled
			f.orders[clientID] = o
		}
	}
	return nil
}

func (f *FakeBroker) ClosePosition(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.positions[:0]
	for _, p := range f.positions {
		if p.Symbol != symbol {
			out = append(out, p)
		}
	}
	f.positions = out
	return nil
}

func (f *FakeBroker) CloseAllPositions(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = nil
	return nil
}

func (f *FakeBroker) GetOrderByClientID(_ context.Context, clientID string) (*broker.Order, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	o, ok := f.orders[clientID]
	if !ok {
		return nil, broker.ErrOrderNotFound
	}
	return &o, nil
}

var _ broker.Broker = (*FakeBroker)(nil)
