package strategy

import (
	"github.com/aristath/paperloop/internal/domain"
	"github.com/aristath/paperloop/pkg/formulas"
)

// EMACrossover emits BUY on a golden cross (fast EMA crosses above slow EMA)
// and CLOSE on a death cross when a long position is held. It operates in
// all regimes but scales confidence down under a choppy regime since it is
// most reliable when momentum_enabled is true.
type EMACrossover struct {
	id   string
	fast int
	slow int
}

// NewEMACrossover builds an EMACrossover strategy with the given fast/slow
// periods, registered under id.
func NewEMACrossover(id string, fastPeriod, slowPeriod int) *EMACrossover {
	return &EMACrossover{id: id, fast: fastPeriod, slow: slowPeriod}
}

// ID returns the strategy's registry key.
func (s *EMACrossover) ID() string { return s.id }

// Generate implements Strategy.
func (s *EMACrossover) Generate(symbol string, bars []domain.Bar, regime *domain.MarketRegime, currentPosition *domain.Position) []domain.Signal {
	if len(bars) < s.slow+2 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	fastNow := formulas.CalculateEMA(closes, s.fast)
	slowNow := formulas.CalculateEMA(closes, s.slow)
	fastPrev := formulas.CalculateEMA(closes[:len(closes)-1], s.fast)
	slowPrev := formulas.CalculateEMA(closes[:len(closes)-1], s.slow)
	if fastNow == nil || slowNow == nil || fastPrev == nil || slowPrev == nil {
		return nil
	}

	goldenCross := *fastPrev <= *slowPrev && *fastNow > *slowNow
	deathCross := *fastPrev >= *slowPrev && *fastNow < *slowNow
	price := closes[len(closes)-1]

	if goldenCross {
		confidence := 0.0
		if *slowNow != 0 {
			confidence = absF(*fastNow-*slowNow) / absF(*slowNow)
		}
		if regime != nil && regime.Trend == domain.TrendChoppy {
			confidence *= 0.5
		}
		return []domain.Signal{newSignal(symbol, domain.SignalBuy, s.id, confidence, &price, map[string]float64{
			"ema_fast": *fastNow, "ema_slow": *slowNow,
		})}
	}
	if deathCross && hasLongPosition(currentPosition) {
		return []domain.Signal{newSignal(symbol, domain.SignalClose, s.id, 1.0, &price, map[string]float64{
			"ema_fast": *fastNow, "ema_slow": *slowNow,
		})}
	}
	return nil
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
