package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/paperloop/internal/domain"
)

// Paper is an in-memory paper-trading broker: it maintains its own cash and
// positions, simulating fills immediately at limit price (for limit orders)
// or at a spread+slippage adjusted mid (for market orders).
type Paper struct {
	mu sync.Mutex

	cash        float64
	positions   map[string]*domain.Position
	orders      map[string]*Order // keyed by client order id
	lastPrices  map[string]float64
	spreadBps   float64
	slippageBps float64
	location    *time.Location
	orderSeq    int
}

// NewPaper constructs a Paper broker with the given starting cash. loc is
// the exchange-local timezone GetClock uses for the regular-hours check.
func NewPaper(initialCash float64, loc *time.Location) *Paper {
	return &Paper{
		cash:        initialCash,
		positions:   make(map[string]*domain.Position),
		orders:      make(map[string]*Order),
		lastPrices:  make(map[string]float64),
		spreadBps:   5,
		slippageBps: 2,
		location:    loc,
	}
}

// SetPrice updates the last-known price for symbol, used to fill market
// orders and to mark open positions to market.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrices[symbol] = price
	if pos, ok := p.positions[symbol]; ok {
		pos.MarketValue = pos.Quantity * price
		pos.UnrealizedPL = (price - pos.AvgPrice) * pos.Quantity
		pos.UpdatedAt = time.Now().UTC()
	}
}

// GetAccount returns the current cash/equity snapshot.
func (p *Paper) GetAccount(ctx context.Context) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.cash
	for _, pos := range p.positions {
		equity += pos.MarketValue
	}
	return Account{Equity: equity, Cash: p.cash, BuyingPower: p.cash}, nil
}

// GetClock reports standard 09:30-16:00 weekday hours in the configured
// exchange timezone.
func (p *Paper) GetClock(ctx context.Context) (Clock, error) {
	now := time.Now().In(p.location)
	open := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, p.location)
	closeT := time.Date(now.Year(), now.Month(), now.Day(), 16, 0, 0, 0, p.location)
	isWeekday := now.Weekday() != time.Saturday && now.Weekday() != time.Sunday
	isOpen := isWeekday && !now.Before(open) && now.Before(closeT)

	return Clock{Timestamp: now.UTC(), IsOpen: isOpen, NextOpen: open, NextClose: closeT}, nil
}

// ListPositions returns a snapshot of every open position.
func (p *Paper) ListPositions(ctx context.Context) ([]domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// ListOrders returns orders matching status (or all orders if status is ""),
// bounded by limit (0 = unbounded). The order of the result is not defined,
// so with a limit the orders returned are whichever matches are seen first.
func (p *Paper) ListOrders(ctx context.Context, status OrderStatus, limit int) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Order
	for _, o := range p.orders {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SubmitLimitOrder fills immediately at limitPrice.
func (p *Paper) SubmitLimitOrder(ctx context.Context, symbol string, qty float64, side domain.Side, limitPrice float64, clientID string) (Order, error) {
	return p.submit(symbol, qty, side, domain.OrderTypeLimit, &limitPrice, clientID)
}

// SubmitMarketOrder fills immediately at a spread+slippage adjusted mid
// derived from the last known price.
func (p *Paper) SubmitMarketOrder(ctx context.Context, symbol string, qty float64, side domain.Side, clientID string) (Order, error) {
	return p.submit(symbol, qty, side, domain.OrderTypeMarket, nil, clientID)
}

func (p *Paper) submit(symbol string, qty float64, side domain.Side, typ domain.OrderType, limitPrice *float64, clientID string) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fillPrice, err := p.resolveFillPrice(symbol, typ, limitPrice, side)
	if err != nil {
		return Order{}, err
	}

	p.orderSeq++
	order := &Order{
		ID:             uuid.NewString(),
		ClientOrderID:  clientID,
		Symbol:         symbol,
		Side:           side,
		Quantity:       qty,
		Type:           typ,
		LimitPrice:     limitPrice,
		Status:         StatusFilled,
		FilledQty:      qty,
		FilledAvgPrice: fillPrice,
		CreatedAt:      time.Now().UTC(),
	}
	p.orders[clientID] = order
	p.applyFill(symbol, qty, side, fillPrice)
	return *order, nil
}

func (p *Paper) resolveFillPrice(symbol string, typ domain.OrderType, limitPrice *float64, side domain.Side) (float64, error) {
	if typ == domain.OrderTypeLimit && limitPrice != nil {
		return *limitPrice, nil
	}
	mid, ok := p.lastPrices[symbol]
	if !ok {
		return 0, fmt.Errorf("broker: no known price for %s, cannot fill market order", symbol)
	}
	adj := mid * (p.spreadBps + p.slippageBps) / 10000
	if side == domain.SideBuy {
		return mid + adj, nil
	}
	return mid - adj, nil
}

func (p *Paper) applyFill(symbol string, qty float64, side domain.Side, price float64) {
	signedQty := qty
	if side == domain.SideSell {
		signedQty = -qty
	}
	p.cash -= signedQty * price

	pos, ok := p.positions[symbol]
	if !ok {
		pos = &domain.Position{Symbol: symbol, Side: side}
		p.positions[symbol] = pos
	}
	newQty := pos.Quantity + signedQty
	if pos.Quantity == 0 || (pos.Quantity > 0) == (signedQty > 0) {
		totalCost := pos.AvgPrice*pos.Quantity + price*signedQty
		if newQty != 0 {
			pos.AvgPrice = totalCost / newQty
		}
	} else if (newQty > 0) != (pos.Quantity > 0) {
		pos.AvgPrice = price
	}
	pos.Quantity = newQty
	pos.MarketValue = newQty * price
	pos.UnrealizedPL = (price - pos.AvgPrice) * newQty
	pos.UpdatedAt = time.Now().UTC()
	if newQty > 0 {
		pos.Side = domain.SideBuy
	} else if newQty < 0 {
		pos.Side = domain.SideSell
	} else {
		delete(p.positions, symbol)
	}
}

// CancelOrder is a no-op for Paper: fills happen synchronously at submit
// time, so there is never an open order to cancel.
func (p *Paper) CancelOrder(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[id]; !ok {
		return ErrOrderNotFound
	}
	return nil
}

// CancelAllOrders is a no-op for the same reason.
func (p *Paper) CancelAllOrders(ctx context.Context) error { return nil }

// ClosePosition submits an offsetting market order for symbol.
func (p *Paper) ClosePosition(ctx context.Context, symbol string) error {
	p.mu.Lock()
	pos, ok := p.positions[symbol]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	side := domain.SideSell
	qty := pos.Quantity
	if qty < 0 {
		side = domain.SideBuy
		qty = -qty
	}
	_, err := p.SubmitMarketOrder(ctx, symbol, qty, side, uuid.NewString())
	return err
}

// CloseAllPositions closes every open position.
func (p *Paper) CloseAllPositions(ctx context.Context) error {
	p.mu.Lock()
	symbols := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		symbols = append(symbols, sym)
	}
	p.mu.Unlock()

	for _, sym := range symbols {
		if err := p.ClosePosition(ctx, sym); err != nil {
			return err
		}
	}
	return nil
}

// GetOrderByClientID looks up a previously submitted order.
func (p *Paper) GetOrderByClientID(ctx context.Context, clientID string) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[clientID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}
