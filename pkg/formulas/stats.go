// Package formulas provides the statistical building blocks used by the optimizer.
package formulas

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// CalculateReturns converts prices to simple percentage returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i], so the result has len(prices)-1 entries.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	// Rocp leaves the first value (inside the lookback window) at zero.
	rocp := talib.Rocp(prices, 1)
	returns := make([]float64, len(prices)-1)
	copy(returns, rocp[1:])
	return returns
}

// AnnualizeGeometric compounds a mean periodic return over a year:
// (1 + mean)^periods - 1.
func AnnualizeGeometric(meanPeriodReturn float64, periods int) float64 {
	return math.Pow(1+meanPeriodReturn, float64(periods)) - 1
}
