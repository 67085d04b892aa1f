package risk

import "time"

// DrawdownConfig holds the policy thresholds.
type DrawdownConfig struct {
	DailyLimitPct float64 // default 3.0 -> should_reduce_exposure
	TotalLimitPct float64 // default 10.0 -> should_halt_trading
}

// DefaultDrawdownConfig returns the spec's documented defaults.
func DefaultDrawdownConfig() DrawdownConfig {
	return DrawdownConfig{DailyLimitPct: 3.0, TotalLimitPct: 10.0}
}

// DrawdownState is the monitor's carried state, immutable between updates:
// Update always returns a new state rather than mutating the receiver.
type DrawdownState struct {
	InitialEquity float64
	PeakEquity    float64
	PeakDate      time.Time
	MaxDDPctEver  float64
}

// NewDrawdownState seeds a state from the day-one equity.
func NewDrawdownState(initialEquity float64, now time.Time) DrawdownState {
	return DrawdownState{InitialEquity: initialEquity, PeakEquity: initialEquity, PeakDate: now}
}

// DrawdownMetrics is the derived read of a state at a given equity mark.
type DrawdownMetrics struct {
	CurrentDDPctFromPeak float64
	TotalDDPctFromInitial float64
	DaysSincePeak        int
	MaxDDPctEver         float64
}

// Update is a pure (state, equity) -> (state', metrics) transition: it never
// mutates its input and has no side effects, so it can be replayed
// identically in a backtest as in the live loop.
func Update(state DrawdownState, equity float64, now time.Time) (DrawdownState, DrawdownMetrics) {
	next := state
	if equity > state.PeakEquity {
		next.PeakEquity = equity
		next.PeakDate = now
	}

	currentDD := 0.0
	if next.PeakEquity > 0 {
		currentDD = (next.PeakEquity - equity) / next.PeakEquity * 100
	}
	totalDD := 0.0
	if next.InitialEquity > 0 {
		totalDD = (next.InitialEquity - equity) / next.InitialEquity * 100
	}
	if currentDD > next.MaxDDPctEver {
		next.MaxDDPctEver = currentDD
	}

	days := int(now.Sub(next.PeakDate).Hours() / 24)
	if days < 0 {
		days = 0
	}

	return next, DrawdownMetrics{
		CurrentDDPctFromPeak:  currentDD,
		TotalDDPctFromInitial: totalDD,
		DaysSincePeak:         days,
		MaxDDPctEver:          next.MaxDDPctEver,
	}
}

// ShouldReduceExposure reports whether the current drawdown breaches the
// daily limit.
func ShouldReduceExposure(cfg DrawdownConfig, m DrawdownMetrics) bool {
	return m.CurrentDDPctFromPeak > cfg.DailyLimitPct
}

// ShouldHaltTrading reports whether the total drawdown from the initial
// equity breaches the account-level limit.
func ShouldHaltTrading(cfg DrawdownConfig, m DrawdownMetrics) bool {
	return m.TotalDDPctFromInitial > cfg.TotalLimitPct
}

// GetPositionScale derives the exposure scale implied by the current
// drawdown: 0 once halted, a floor of 0.25 while reducing, else full size.
func GetPositionScale(cfg DrawdownConfig, m DrawdownMetrics) float64 {
	if ShouldHaltTrading(cfg, m) {
		return 0
	}
	if ShouldReduceExposure(cfg, m) {
		scale := 1 - m.CurrentDDPctFromPeak/cfg.DailyLimitPct
		if scale < 0.25 {
			return 0.25
		}
		return scale
	}
	return 1
}
