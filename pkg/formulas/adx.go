package formulas

import "github.com/markcheno/go-talib"

// CalculateADX returns the current Average Directional Index over the given
// period, or nil if there is not enough data. ADX needs roughly 2*period
// bars to stabilize past its internal Wilder smoothing warm-up.
func CalculateADX(highs, lows, closes []float64, period int) *float64 {
	if len(closes) < 2*period {
		return nil
	}
	adx := talib.Adx(highs, lows, closes, period)
	if v, ok := lastValid(adx); ok {
		return &v
	}
	return nil
}
