package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// tradingDaysPerYear annualizes a daily return stdev into realized volatility.
const tradingDaysPerYear = 252.0

// Returns converts a closes series into simple period returns.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			continue
		}
		out = append(out, (closes[i]-prev)/prev)
	}
	return out
}

// RealizedVolatility returns the annualized standard deviation of returns
// over the trailing window closes, or nil if fewer than 2 returns exist.
func RealizedVolatility(closes []float64, window int) *float64 {
	if window > len(closes) {
		window = len(closes)
	}
	trailing := closes
	if window > 0 && window < len(closes) {
		trailing = closes[len(closes)-window:]
	}
	rets := Returns(trailing)
	if len(rets) < 2 {
		return nil
	}
	sd := stat.StdDev(rets, nil)
	annualized := sd * math.Sqrt(tradingDaysPerYear)
	return &annualized
}

// PercentileRank returns the fraction (0-1) of samples in history that are
// <= value. Used to classify current realized volatility against its own
// rolling distribution (low/normal/high thresholds).
func PercentileRank(history []float64, value float64) float64 {
	if len(history) == 0 {
		return 0.5
	}
	sorted := make([]float64, len(history))
	copy(sorted, history)
	sort.Float64s(sorted)

	count := sort.SearchFloat64s(sorted, value)
	// SearchFloat64s returns the insertion point for value among sorted
	// values that are < value; adjust to count values <= value.
	for count < len(sorted) && sorted[count] <= value {
		count++
	}
	return float64(count) / float64(len(sorted))
}
