// Package reconcile implements the Reconciler (C10): the timeout-handling
// protocol that resolves orders the broker never confirmed, and the
// position-sync bridge into the Live State Cache.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/paperloop/internal/broker"
	"github.com/aristath/paperloop/internal/cache"
	"github.com/aristath/paperloop/internal/domain"
	"github.com/aristath/paperloop/internal/orders"
)

// Reconciler bridges the Order Manager's FSM to broker truth.
type Reconciler struct {
	broker broker.Broker
	orders *orders.Manager
	cache  *cache.Cache
	log    zerolog.Logger
}

// New builds a Reconciler.
func New(b broker.Broker, om *orders.Manager, c *cache.Cache, log zerolog.Logger) *Reconciler {
	return &Reconciler{broker: b, orders: om, cache: c, log: log.With().Str("component", "reconcile").Logger()}
}

// mapBrokerStatus translates the broker's own status vocabulary into the Order
// Manager's FSM states.
func mapBrokerStatus(s broker.OrderStatus) domain.OrderStatus {
	switch s {
	case broker.StatusNew, broker.StatusAccepted, broker.StatusPendingNew:
		return domain.OrderSubmitted
	case broker.StatusFilled:
		return domain.OrderFilled
	case broker.StatusPartiallyFilled:
		return domain.OrderPartialFill
	case broker.StatusCanceled:
		return domain.OrderCancelled
	case broker.StatusRejected, broker.StatusExpired:
		return domain.OrderFailed
	default:
		return domain.OrderUnknown
	}
}

// HandleTimeout implements the 5-step timeout protocol verbatim:
//  1. mark the order UNKNOWN
//  2. query the broker by client order id
//  3. if found, map its status and update the order; should_retry is always
//     false once a broker answer exists, since the order's fate is now known
//  4. if not found and the query itself succeeded, mark FAILED and report
//     should_retry=true (the broker never saw the order, it's safe to retry)
//  5. if the query failed, make the conservative choice: should_retry=false,
//     and surface the query error upstream rather than guess
func (r *Reconciler) HandleTimeout(ctx context.Context, clientID string) (shouldRetry bool, reconciled *domain.Order, err error) {
	if terr := r.orders.Transition(clientID, domain.OrderUnknown, 0, 0); terr != nil {
		r.log.Warn().Err(terr).Str("client_id", clientID).Msg("could not mark order unknown before reconciling")
	}

	bo, queryErr := r.broker.GetOrderByClientID(ctx, clientID)
	if queryErr != nil {
		if isNotFoundErr(queryErr) {
			if terr := r.orders.Transition(clientID, domain.OrderFailed, 0, 0); terr != nil {
				return false, nil, fmt.Errorf("reconcile: mark failed after not-found: %w", terr)
			}
			o, _ := r.orders.GetByClientID(clientID)
			return true, &o, nil
		}
		// The query itself failed (network, auth, etc): we cannot tell
		// whether the order exists, so don't retry blind.
		return false, nil, fmt.Errorf("reconcile: broker query failed for %s: %w", clientID, queryErr)
	}

	mapped := mapBrokerStatus(bo.Status)
	var fillDelta, fillPrice float64
	if mapped == domain.OrderFilled || mapped == domain.OrderPartialFill {
		current, _ := r.orders.GetByClientID(clientID)
		fillDelta = bo.FilledQty - current.FilledQty
		fillPrice = bo.FilledAvgPrice
	}
	if terr := r.orders.Transition(clientID, mapped, fillDelta, fillPrice); terr != nil {
		return false, nil, fmt.Errorf("reconcile: apply broker status: %w", terr)
	}
	o, _ := r.orders.GetByClientID(clientID)
	return false, &o, nil
}

// ReconcileAll runs HandleTimeout for every currently open order whose
// status is UNKNOWN; open orders in any other state are not checked.
func (r *Reconciler) ReconcileAll(ctx context.Context) []error {
	var errs []error
	for _, o := range r.orders.GetOpenOrders() {
		if o.Status != domain.OrderUnknown {
			continue
		}
		if _, _, err := r.HandleTimeout(ctx, o.ClientOrderID); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ReconcilePositions replaces the Live State Cache's positions namespace
// wholesale from current broker truth.
func (r *Reconciler) ReconcilePositions(ctx context.Context) error {
	positions, err := r.broker.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: list positions: %w", err)
	}
	return r.cache.SyncPositions(positions)
}

func isNotFoundErr(err error) bool {
	return err == broker.ErrOrderNotFound
}
