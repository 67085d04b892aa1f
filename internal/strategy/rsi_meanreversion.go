package strategy

import (
	"github.com/aristath/paperloop/internal/domain"
	"github.com/aristath/paperloop/pkg/formulas"
)

// RSIMeanReversion emits BUY when RSI drops below oversold, and CLOSE when
// RSI rises above overbought while a long position is held. Disabled in a
// strong trend, where mean reversion tends to fight the trend.
type RSIMeanReversion struct {
	id        string
	period    int
	oversold  float64
	overbought float64
}

// NewRSIMeanReversion builds an RSIMeanReversion strategy.
func NewRSIMeanReversion(id string, period int, oversold, overbought float64) *RSIMeanReversion {
	return &RSIMeanReversion{id: id, period: period, oversold: oversold, overbought: overbought}
}

// ID returns the strategy's registry key.
func (s *RSIMeanReversion) ID() string { return s.id }

// Generate implements Strategy.
func (s *RSIMeanReversion) Generate(symbol string, bars []domain.Bar, regime *domain.MarketRegime, currentPosition *domain.Position) []domain.Signal {
	if regime != nil && regime.Trend == domain.TrendStrong {
		return nil
	}
	if len(bars) < s.period+1 {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	rsi := formulas.CalculateRSI(closes, s.period)
	if rsi == nil {
		return nil
	}
	price := closes[len(closes)-1]

	if *rsi < s.oversold {
		confidence := (s.oversold - *rsi) / s.oversold
		return []domain.Signal{newSignal(symbol, domain.SignalBuy, s.id, confidence, &price, map[string]float64{"rsi": *rsi})}
	}
	if *rsi > s.overbought && hasLongPosition(currentPosition) {
		return []domain.Signal{newSignal(symbol, domain.SignalClose, s.id, 1.0, &price, map[string]float64{"rsi": *rsi})}
	}
	return nil
}
