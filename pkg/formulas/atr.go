package formulas

import "github.com/markcheno/go-talib"

// CalculateATR returns the current Average True Range over the given period,
// or nil if there is not enough data.
func CalculateATR(highs, lows, closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	atr := talib.Atr(highs, lows, closes, period)
	if v, ok := lastValid(atr); ok {
		return &v
	}
	return nil
}
