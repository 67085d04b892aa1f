// Package regime implements the Regime Detector (C6): a dual-speed
// volatility + trend classifier with a crisis override that preempts all
// other signals.
package regime

import (
	"time"

	"github.com/aristath/paperloop/internal/domain"
	"github.com/aristath/paperloop/pkg/formulas"
)

// Config holds the detector's tunable windows and thresholds, sourced from
// internal/config.
type Config struct {
	FastWindowDays int     // default 3, N-day ATR
	SlowWindowDays int     // default 20, M-day realized vol
	ADXPeriod      int     // default 14
	CrisisK        float64 // default 2.0

	ADXChoppyMax  float64 // default 20
	ADXStrongMin  float64 // default 25
	VolLowPctile  float64 // default 0.20
	VolHighPctile float64 // default 0.80

	// VolHistoryLookback bounds how many trailing slow-vol samples feed the
	// percentile ranking.
	VolHistoryLookback int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		FastWindowDays:     3,
		SlowWindowDays:     20,
		ADXPeriod:          14,
		CrisisK:            2.0,
		ADXChoppyMax:       20,
		ADXStrongMin:       25,
		VolLowPctile:       0.20,
		VolHighPctile:      0.80,
		VolHistoryLookback: 120,
	}
}

// Detector classifies bars into a MarketRegime.
type Detector struct {
	cfg Config
}

// New builds a Detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

func (d *Detector) minBarsRequired() int {
	slow := d.cfg.SlowWindowDays
	adx2 := 2 * d.cfg.ADXPeriod
	if adx2 > slow {
		return adx2
	}
	return slow
}

// conservativeDefault is returned when fewer than minBarsRequired bars are
// available: choppy/normal, momentum disabled, position_scale 0.5 — a
// deliberately non-zero conservative posture, not a hard failure.
func conservativeDefault(ts time.Time, symbol *string) domain.MarketRegime {
	return domain.MarketRegime{
		Timestamp:       ts,
		Symbol:          symbol,
		Trend:           domain.TrendChoppy,
		Volatility:      domain.VolNormal,
		MomentumEnabled: false,
		PositionScale:   0.5,
	}
}

// Detect classifies bars (oldest first, single symbol series) into a
// MarketRegime. volHistory is the rolling slow-vol sample history used for
// percentile ranking; Detect appends the freshly computed slow-vol to it as
// a side effect is NOT performed here — callers own persisting history.
func (d *Detector) Detect(bars []domain.Bar, symbol *string, volHistory []float64) domain.MarketRegime {
	if len(bars) == 0 {
		return conservativeDefault(time.Now().UTC(), symbol)
	}
	ts := bars[len(bars)-1].Timestamp

	if len(bars) < d.minBarsRequired() {
		return conservativeDefault(ts, symbol)
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	fastATR := formulas.CalculateATR(highs, lows, closes, d.cfg.FastWindowDays)
	slowVol := formulas.RealizedVolatility(closes, d.cfg.SlowWindowDays)
	adx := formulas.CalculateADX(highs, lows, closes, d.cfg.ADXPeriod)

	if fastATR == nil || slowVol == nil || adx == nil || *slowVol == 0 {
		return conservativeDefault(ts, symbol)
	}

	ratio := *fastATR / *slowVol

	// Crisis override preempts all other classification regardless of ADX.
	if ratio > d.cfg.CrisisK {
		return domain.MarketRegime{
			Timestamp: ts, Symbol: symbol,
			Trend: domain.TrendChoppy, Volatility: domain.VolCrisis,
			ADX: *adx, FastATR: *fastATR, SlowRealizedVol: *slowVol, Ratio: ratio,
			MomentumEnabled: false, PositionScale: 0.25,
		}
	}

	trend := classifyTrend(*adx, d.cfg)
	vol := classifyVolatility(*slowVol, volHistory, d.cfg)

	return domain.MarketRegime{
		Timestamp: ts, Symbol: symbol,
		Trend: trend, Volatility: vol,
		ADX: *adx, FastATR: *fastATR, SlowRealizedVol: *slowVol, Ratio: ratio,
		MomentumEnabled: trend != domain.TrendChoppy,
		PositionScale:   positionScale(vol),
	}
}

// BuildVolHistory computes the rolling realized-volatility series used to
// rank the current slow-vol reading in classifyVolatility. Each sample is
// the realized volatility of the SlowWindowDays window ending at that bar;
// the final window (today's, which Detect computes fresh as slowVol) is
// excluded so a reading is never ranked against itself. The result is
// capped to the most recent VolHistoryLookback samples.
func (d *Detector) BuildVolHistory(closes []float64) []float64 {
	window := d.cfg.SlowWindowDays
	if len(closes) <= window+1 {
		return nil
	}

	var history []float64
	for i := window; i < len(closes)-1; i++ {
		if v := formulas.RealizedVolatility(closes[:i+1], window); v != nil {
			history = append(history, *v)
		}
	}

	lookback := d.cfg.VolHistoryLookback
	if lookback > 0 && len(history) > lookback {
		history = history[len(history)-lookback:]
	}
	return history
}

func classifyTrend(adx float64, cfg Config) domain.Trend {
	switch {
	case adx < cfg.ADXChoppyMax:
		return domain.TrendChoppy
	case adx < cfg.ADXStrongMin:
		return domain.TrendWeak
	default:
		return domain.TrendStrong
	}
}

func classifyVolatility(slowVol float64, history []float64, cfg Config) domain.Volatility {
	pctile := formulas.PercentileRank(history, slowVol)
	switch {
	case pctile < cfg.VolLowPctile:
		return domain.VolLow
	case pctile > cfg.VolHighPctile:
		return domain.VolHigh
	default:
		return domain.VolNormal
	}
}

// positionScale implements the fixed scale table: low/normal 1.0, high 0.5,
// crisis 0.25 (crisis is handled directly in Detect's override branch).
func positionScale(vol domain.Volatility) float64 {
	switch vol {
	case domain.VolHigh:
		return 0.5
	case domain.VolCrisis:
		return 0.25
	default:
		return 1.0
	}
}
