package formulas

import "github.com/markcheno/go-talib"

// CalculateEMA returns the current Exponential Moving Average over closes,
// falling back to a simple mean when the series is shorter than length.
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}
	if len(closes) < length {
		sma := Mean(closes)
		return &sma
	}

	ema := talib.Ema(closes, length)
	if v, ok := lastValid(ema); ok {
		return &v
	}

	sma := Mean(closes[len(closes)-length:])
	return &sma
}

// CalculateSMA returns the Simple Moving Average over the last length closes.
func CalculateSMA(closes []float64, length int) *float64 {
	if len(closes) < length {
		return nil
	}
	sma := talib.Sma(closes, length)
	if v, ok := lastValid(sma); ok {
		return &v
	}
	return nil
}
