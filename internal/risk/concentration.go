package risk

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ConcentrationConfig bounds single-position and correlated-bloc exposure.
type ConcentrationConfig struct {
	MaxPositionPct   float64 // default 25.0, spec's sector/single-name cap
	CorrelationLimit float64 // default 0.80
}

// DefaultConcentrationConfig returns the spec's documented defaults.
func DefaultConcentrationConfig() ConcentrationConfig {
	return ConcentrationConfig{MaxPositionPct: 25.0, CorrelationLimit: 0.80}
}

// Holding is one position's share of the portfolio, used for the
// concentration check.
type Holding struct {
	Symbol  string
	Pct     float64
	Returns []float64 // aligned daily return series, used for correlation
}

// ConcentrationViolation names a symbol (or symbol pair) that breaches a
// limit.
type ConcentrationViolation struct {
	Kind    string // "position" or "correlation"
	Symbol  string
	PairedWith string
	Value   float64
	Limit   float64
}

// CheckConcentration flags any single holding over MaxPositionPct.
func CheckConcentration(cfg ConcentrationConfig, holdings []Holding) []ConcentrationViolation {
	var out []ConcentrationViolation
	for _, h := range holdings {
		if h.Pct > cfg.MaxPositionPct {
			out = append(out, ConcentrationViolation{
				Kind: "position", Symbol: h.Symbol, Value: h.Pct, Limit: cfg.MaxPositionPct,
			})
		}
	}
	return out
}

// CheckCorrelation builds a pairwise correlation matrix across held symbols'
// return series and flags any pair whose correlation exceeds the configured
// limit. Symbols with fewer than 2 returns are skipped rather than failing
// the whole check, since correlation across a partial book is still
// actionable information; series of differing lengths are compared over the
// trailing window of the shortest usable series.
func CheckCorrelation(cfg ConcentrationConfig, holdings []Holding) []ConcentrationViolation {
	usable := make([]Holding, 0, len(holdings))
	minLen := 0
	for _, h := range holdings {
		if len(h.Returns) < 2 {
			continue
		}
		if minLen == 0 || len(h.Returns) < minLen {
			minLen = len(h.Returns)
		}
		usable = append(usable, h)
	}
	if len(usable) < 2 {
		return nil
	}

	n := len(usable)
	data := mat.NewDense(minLen, n, nil)
	for col, h := range usable {
		for row := 0; row < minLen; row++ {
			data.Set(row, col, h.Returns[len(h.Returns)-minLen+row])
		}
	}

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, data, nil)

	var out []ConcentrationViolation
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := corr.At(i, j)
			if c > cfg.CorrelationLimit {
				out = append(out, ConcentrationViolation{
					Kind: "correlation", Symbol: usable[i].Symbol, PairedWith: usable[j].Symbol,
					Value: c, Limit: cfg.CorrelationLimit,
				})
			}
		}
	}
	return out
}
