// Package orders implements the Order Manager (C9): an explicit-whitelist
// finite state machine over domain.OrderStatus, keyed by client order id
// with a secondary index by broker order id.
package orders

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/paperloop/internal/domain"
)

// ErrInvalidTransition is returned instead of panicking when a caller
// requests a status change the FSM's whitelist does not allow.
type ErrInvalidTransition struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("orders: invalid transition %s -> %s", e.From, e.To)
}

// ErrNotFound is returned when a client or broker id has no known order.
var ErrNotFound = fmt.Errorf("orders: order not found")

// transitions is the closed whitelist of allowed status changes. The
// Reconciler is the only caller permitted to set UNKNOWN->SUBMITTED or
// UNKNOWN->FILLED; the Manager itself does not enforce caller identity,
// that's a convention upheld by internal/reconcile being the only package
// that calls Transition with those targets.
var transitions = map[domain.OrderStatus]map[domain.OrderStatus]bool{
	domain.OrderPending: {
		domain.OrderSubmitted: true,
		domain.OrderFailed:    true,
	},
	domain.OrderSubmitted: {
		domain.OrderFilled:      true,
		domain.OrderPartialFill: true,
		domain.OrderCancelled:   true,
		domain.OrderUnknown:     true,
		domain.OrderFailed:      true,
	},
	domain.OrderPartialFill: {
		domain.OrderFilled:    true,
		domain.OrderCancelled: true,
		domain.OrderFailed:    true,
	},
	domain.OrderUnknown: {
		domain.OrderSubmitted: true,
		domain.OrderFilled:    true,
		domain.OrderFailed:    true,
	},
}

// CanTransition reports whether the whitelist permits from -> to.
func CanTransition(from, to domain.OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	return transitions[from][to]
}

// Manager owns the full set of known orders in memory, guarded by a single
// RWMutex since lookups vastly outnumber transitions.
type Manager struct {
	mu          sync.RWMutex
	byClientID  map[string]*domain.Order
	byBrokerID  map[string]string // broker id -> client id
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{
		byClientID: make(map[string]*domain.Order),
		byBrokerID: make(map[string]string),
	}
}

// Create registers a new order in PENDING status.
func (m *Manager) Create(o domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Status = domain.OrderPending
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.UpdatedAt = o.CreatedAt
	cp := o
	m.byClientID[o.ClientOrderID] = &cp
}

// GetByClientID returns the order registered under clientID.
func (m *Manager) GetByClientID(clientID string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.byClientID[clientID]
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	return *o, nil
}

// GetByBrokerID returns the order registered under the given broker id.
func (m *Manager) GetByBrokerID(brokerID string) (domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clientID, ok := m.byBrokerID[brokerID]
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	o, ok := m.byClientID[clientID]
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	return *o, nil
}

// AttachBrokerID indexes an order by its broker-assigned id, once known
// (the broker id is not issued until submission succeeds).
func (m *Manager) AttachBrokerID(clientID, brokerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byClientID[clientID]
	if !ok {
		return ErrNotFound
	}
	brokerIDCopy := brokerID
	o.BrokerOrderID = &brokerIDCopy
	m.byBrokerID[brokerID] = clientID
	return nil
}

// Transition applies a FSM transition, never panicking on an illegal
// request: callers get a typed error they can log and continue past.
func (m *Manager) Transition(clientID string, to domain.OrderStatus, filledQtyDelta float64, fillPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byClientID[clientID]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(o.Status, to) {
		return &ErrInvalidTransition{From: o.Status, To: to}
	}

	if to == domain.OrderFilled || to == domain.OrderPartialFill {
		o.FilledQty += filledQtyDelta
		o.LastFillPrice = fillPrice
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// GetOpenOrders returns every order not yet in a terminal state.
func (m *Manager) GetOpenOrders() []domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range m.byClientID {
		if !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

// GetOrdersBySymbol returns every known order for symbol, open or terminal.
func (m *Manager) GetOrdersBySymbol(symbol string) []domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range m.byClientID {
		if o.Symbol == symbol {
			out = append(out, *o)
		}
	}
	return out
}

// All returns every known order, open or terminal.
func (m *Manager) All() []domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Order, 0, len(m.byClientID))
	for _, o := range m.byClientID {
		out = append(out, *o)
	}
	return out
}
