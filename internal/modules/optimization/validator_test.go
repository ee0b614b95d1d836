package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestValidateWeights(t *testing.T) {
	tickers := []string{"AAA", "BBB", "CCC"}
	limits := PositionLimits{Min: 0, Max: 0.5}

	t.Run("renormalizes drift and keeps order", func(t *testing.T) {
		byTicker, w, err := ValidateWeights([]float64{0.2000001, 0.3, 0.4999999}, tickers, limits)
		require.NoError(t, err)
		sum := w[0] + w[1] + w[2]
		assert.InDelta(t, 1.0, sum, 1e-15)
		assert.Equal(t, w[0], byTicker["AAA"])
		assert.Equal(t, w[2], byTicker["CCC"])
	})

	t.Run("tolerates tiny overshoot", func(t *testing.T) {
		_, _, err := ValidateWeights([]float64{0.5000005, 0.4999995, 0}, tickers, limits)
		assert.NoError(t, err)
	})

	t.Run("out of bounds is never clamped", func(t *testing.T) {
		_, _, err := ValidateWeights([]float64{0.6, 0.3, 0.1}, tickers, limits)
		var bv *BoundsViolation
		require.ErrorAs(t, err, &bv)
		assert.Equal(t, "AAA", bv.Ticker)
		assert.InDelta(t, 0.6, bv.Weight, 1e-12)
	})

	t.Run("zero sum", func(t *testing.T) {
		_, _, err := ValidateWeights([]float64{0, 0, 0}, tickers, limits)
		assert.ErrorIs(t, err, ErrBounds)
	})

	t.Run("non-finite sum", func(t *testing.T) {
		_, _, err := ValidateWeights([]float64{math.NaN(), 0.5, 0.5}, tickers, limits)
		assert.ErrorIs(t, err, ErrBounds)
	})
}

func TestCalculateMetrics(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{0.04, 0, 0, 0.09})
	mu := []float64{0.10, 0.20}

	m, err := CalculateMetrics([]float64{0.5, 0.5}, mu, cov, 0.04)
	require.NoError(t, err)
	vol := math.Sqrt(0.25*0.04 + 0.25*0.09)
	assert.InDelta(t, 0.15, m.ExpectedReturn, 1e-12)
	assert.InDelta(t, vol, m.Volatility, 1e-12)
	assert.InDelta(t, (0.15-0.04)/vol, m.SharpeRatio, 1e-12)
	assert.InDelta(t, 0.25/vol, m.DiversificationRatio, 1e-12)
	assert.GreaterOrEqual(t, m.DiversificationRatio, 1.0)

	t.Run("single asset has ratio one", func(t *testing.T) {
		m, err := CalculateMetrics([]float64{1, 0}, mu, cov, 0.04)
		require.NoError(t, err)
		assert.Equal(t, 1.0, m.DiversificationRatio)
	})

	t.Run("ratio below one is an invariant violation", func(t *testing.T) {
		// Correlation above one, as produced by a corrupted covariance matrix.
		broken := mat.NewSymDense(2, []float64{0.04, 0.1, 0.1, 0.09})
		_, err := CalculateMetrics([]float64{0.5, 0.5}, mu, broken, 0.04)
		var iv *InvariantViolation
		require.ErrorAs(t, err, &iv)
		assert.Equal(t, "diversification_ratio", iv.Name)
		assert.Less(t, iv.Value, 1.0)
	})

	t.Run("short legs count at gross size", func(t *testing.T) {
		w := []float64{1.5, -0.5}
		m, err := CalculateMetrics(w, mu, cov, 0.04)
		require.NoError(t, err)

		vol := math.Sqrt(1.5*1.5*0.04 + 0.5*0.5*0.09)
		assert.InDelta(t, vol, m.Volatility, 1e-12)
		assert.InDelta(t, (1.5*0.2+0.5*0.3)/vol, m.DiversificationRatio, 1e-12)
		assert.InDelta(t, 1.3416, m.DiversificationRatio, 1e-4)
		assert.InDelta(t, 1.5*0.10-0.5*0.20, m.ExpectedReturn, 1e-12)
	})

	t.Run("zero volatility", func(t *testing.T) {
		_, err := CalculateMetrics([]float64{0, 0}, mu, cov, 0.04)
		assert.ErrorIs(t, err, ErrInvariant)
	})
}
