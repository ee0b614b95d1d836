package optimization

import (
	"math"
)

// BoundsTolerance is the slack allowed on position limits after renormalization.
const BoundsTolerance = 1e-6

// ValidateWeights renormalizes raw solver weights so they sum to exactly one and
// checks each against the position limits. Weights are never clamped: a weight
// outside [min-1e-6, max+1e-6] is a BoundsViolation. The returned map is keyed by
// ticker; the slice keeps ticker order.
func ValidateWeights(raw []float64, tickers []string, limits PositionLimits) (map[string]float64, []float64, error) {
	if len(raw) != len(tickers) {
		return nil, nil, validationErrorf("weights", "got %d weights for %d tickers", len(raw), len(tickers))
	}

	sum := 0.0
	for _, w := range raw {
		sum += w
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, nil, &BoundsViolation{Weight: sum, Min: limits.Min, Max: limits.Max}
	}

	normalized := make([]float64, len(raw))
	byTicker := make(map[string]float64, len(raw))
	for i, w := range raw {
		nw := w / sum
		if nw < limits.Min-BoundsTolerance || nw > limits.Max+BoundsTolerance || math.IsNaN(nw) {
			return nil, nil, &BoundsViolation{
				Ticker: tickers[i],
				Weight: nw,
				Min:    limits.Min,
				Max:    limits.Max,
			}
		}
		normalized[i] = nw
		byTicker[tickers[i]] = nw
	}
	return byTicker, normalized, nil
}
