package formulas

import "github.com/markcheno/go-talib"

// CalculateRSI returns the current Relative Strength Index over closes, or
// nil if there is not enough data for the given period.
func CalculateRSI(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	rsi := talib.Rsi(closes, period)
	if v, ok := lastValid(rsi); ok {
		return &v
	}
	return nil
}
