// Package strategy implements the Strategies component (C7): regime-gated
// signal generators plus a Registry keyed by strategy id.
package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/aristath/paperloop/internal/domain"
)

// Strategy is the capability set every signal generator implements: a
// tagged-variant-by-id pattern rather than duck typing.
type Strategy interface {
	ID() string
	Generate(symbol string, bars []domain.Bar, regime *domain.MarketRegime, currentPosition *domain.Position) []domain.Signal
}

// Registry holds strategies keyed by id.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds s to the registry, keyed by its own id.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.ID()] = s
}

// Get returns the strategy registered under id, if any.
func (r *Registry) Get(id string) (Strategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}

// Enabled returns every registered strategy.
func (r *Registry) Enabled() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	return out
}

func newSignal(symbol string, typ domain.SignalType, strategyID string, confidence float64, entryPrice *float64, meta map[string]float64) domain.Signal {
	return domain.Signal{
		Symbol: symbol, Type: typ, Timestamp: time.Now().UTC(),
		StrategyID: strategyID, SignalID: uuid.NewString(),
		Confidence: clamp01(confidence), EntryPrice: entryPrice, Metadata: meta,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func hasLongPosition(pos *domain.Position) bool {
	return pos != nil && pos.Quantity > 0
}
