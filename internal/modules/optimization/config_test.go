package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptimizationConfig_Defaults(t *testing.T) {
	cfg, err := NewOptimizationConfig(MethodMaxSharpe)
	require.NoError(t, err)

	assert.Equal(t, MethodMaxSharpe, cfg.Method())
	assert.Equal(t, DefaultRiskFreeRate, cfg.RiskFreeRate())
	assert.Equal(t, PositionLimits{Min: 0, Max: 1}, cfg.PositionLimits())
	assert.False(t, cfg.AllowShort())
	assert.Nil(t, cfg.Views())
	_, ok := cfg.TargetReturn()
	assert.False(t, ok)
	assert.False(t, cfg.IsZero())
}

func TestNewOptimizationConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		opts   []ConfigOption
		field  string
	}{
		{"unknown method", Method("hrp"), nil, "method"},
		{"uppercase method", Method("MAX_SHARPE"), nil, "method"},
		{"negative risk free", MethodMinVariance, []ConfigOption{WithRiskFreeRate(-0.01)}, "risk_free_rate"},
		{"risk free too high", MethodMinVariance, []ConfigOption{WithRiskFreeRate(0.25)}, "risk_free_rate"},
		{"risk free NaN", MethodMinVariance, []ConfigOption{WithRiskFreeRate(math.NaN())}, "risk_free_rate"},
		{"target on wrong method", MethodMaxSharpe, []ConfigOption{WithTargetReturn(0.1)}, "target_return"},
		{"target above one", MethodMeanVariance, []ConfigOption{WithTargetReturn(1.5)}, "target_return"},
		{"negative target", MethodMeanVariance, []ConfigOption{WithTargetReturn(-0.1)}, "target_return"},
		{"min equals max", MethodMinVariance, []ConfigOption{WithPositionLimits(0.5, 0.5)}, "position_limits"},
		{"max above one", MethodMinVariance, []ConfigOption{WithPositionLimits(0, 1.2)}, "position_limits"},
		{"min below minus one", MethodMinVariance, []ConfigOption{WithShortSelling(true), WithPositionLimits(-1.5, 1)}, "position_limits"},
		{"short without allow", MethodMinVariance, []ConfigOption{WithPositionLimits(-0.2, 1)}, "position_limits"},
		{"black litterman without views", MethodBlackLitterman, nil, "views"},
		{"black litterman empty views", MethodBlackLitterman, []ConfigOption{WithViews(map[string]float64{})}, "views"},
		{"views on other method", MethodRiskParity, []ConfigOption{WithViews(map[string]float64{"AAA": 0.1})}, "views"},
		{"empty view ticker", MethodBlackLitterman, []ConfigOption{WithViews(map[string]float64{"": 0.1})}, "views"},
		{"view out of range", MethodBlackLitterman, []ConfigOption{WithViews(map[string]float64{"AAA": 3})}, "views"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewOptimizationConfig(tt.method, tt.opts...)
			require.Error(t, err)
			assert.True(t, cfg.IsZero(), "no partially valid config may be returned")

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNewOptimizationConfig_ViewsAreCopied(t *testing.T) {
	views := map[string]float64{"BBB": 0.12, "AAA": 0.08}
	cfg, err := NewOptimizationConfig(MethodBlackLitterman, WithViews(views))
	require.NoError(t, err)

	views["AAA"] = 1.9
	assert.Equal(t, 0.08, cfg.Views()["AAA"])

	got := cfg.Views()
	got["BBB"] = 0
	assert.Equal(t, 0.12, cfg.Views()["BBB"])
	assert.Equal(t, []string{"AAA", "BBB"}, cfg.ViewTickers())
}

func TestNewOptimizationConfig_ShortSelling(t *testing.T) {
	cfg, err := NewOptimizationConfig(MethodMinVariance, WithShortSelling(true), WithPositionLimits(-0.3, 0.8))
	require.NoError(t, err)
	assert.True(t, cfg.AllowShort())
	assert.Equal(t, PositionLimits{Min: -0.3, Max: 0.8}, cfg.PositionLimits())
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" Max_Sharpe ")
	require.NoError(t, err)
	assert.Equal(t, MethodMaxSharpe, m)

	_, err = ParseMethod("hierarchical")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Len(t, AllMethods(), 5)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "validation_error", ErrorKind(validationErrorf("x", "bad")))
	assert.Equal(t, "convergence_failure", ErrorKind(&ConvergenceFailure{Status: "stalled"}))
	assert.Equal(t, "bounds_violation", ErrorKind(&BoundsViolation{Ticker: "A"}))
	assert.Equal(t, "invariant_violation", ErrorKind(&InvariantViolation{Name: "dr"}))
	assert.Equal(t, "internal_error", ErrorKind(assert.AnError))
}
