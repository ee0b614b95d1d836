package optimization

import (
	"math"
	"sort"
)

// Default configuration values.
const (
	DefaultRiskFreeRate = 0.02
	MaxRiskFreeRate     = 0.20
)

// OptimizationConfig is a validated, immutable optimization request.
// The zero value is not usable; build one with NewOptimizationConfig.
type OptimizationConfig struct {
	method         Method
	riskFreeRate   float64
	targetReturn   *float64
	allowShort     bool
	positionLimits PositionLimits
	views          map[string]float64
}

// ConfigOption customizes an OptimizationConfig under construction.
type ConfigOption func(*OptimizationConfig)

// WithRiskFreeRate sets the annual risk-free rate used for Sharpe ratios.
func WithRiskFreeRate(rate float64) ConfigOption {
	return func(c *OptimizationConfig) { c.riskFreeRate = rate }
}

// WithTargetReturn sets a minimum annual return (mean_variance only).
func WithTargetReturn(target float64) ConfigOption {
	return func(c *OptimizationConfig) {
		t := target
		c.targetReturn = &t
	}
}

// WithShortSelling allows negative lower position limits.
func WithShortSelling(allow bool) ConfigOption {
	return func(c *OptimizationConfig) { c.allowShort = allow }
}

// WithPositionLimits sets the per-asset weight box.
func WithPositionLimits(minWeight, maxWeight float64) ConfigOption {
	return func(c *OptimizationConfig) { c.positionLimits = PositionLimits{Min: minWeight, Max: maxWeight} }
}

// WithViews sets Black-Litterman views (ticker -> annual return). The map is copied.
func WithViews(views map[string]float64) ConfigOption {
	return func(c *OptimizationConfig) {
		if views == nil {
			c.views = nil
			return
		}
		c.views = make(map[string]float64, len(views))
		for k, v := range views {
			c.views[k] = v
		}
	}
}

// NewOptimizationConfig builds and validates a configuration. No partially valid
// configuration is ever returned.
func NewOptimizationConfig(method Method, opts ...ConfigOption) (OptimizationConfig, error) {
	cfg := OptimizationConfig{
		method:         method,
		riskFreeRate:   DefaultRiskFreeRate,
		positionLimits: PositionLimits{Min: 0, Max: 1},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return OptimizationConfig{}, err
	}
	return cfg, nil
}

func (c *OptimizationConfig) validate() error {
	if !c.method.Valid() {
		return validationErrorf("method", "unknown optimization method %q", c.method)
	}

	if math.IsNaN(c.riskFreeRate) || c.riskFreeRate < 0 || c.riskFreeRate > MaxRiskFreeRate {
		return validationErrorf("risk_free_rate", "must be in [0, %.2f], got %v", MaxRiskFreeRate, c.riskFreeRate)
	}

	if c.targetReturn != nil {
		if c.method != MethodMeanVariance {
			return validationErrorf("target_return", "only valid for %s, not %s", MethodMeanVariance, c.method)
		}
		t := *c.targetReturn
		if math.IsNaN(t) || t < 0 || t > 1 {
			return validationErrorf("target_return", "must be in [0, 1], got %v", t)
		}
	}

	lim := c.positionLimits
	if math.IsNaN(lim.Min) || math.IsNaN(lim.Max) {
		return validationErrorf("position_limits", "limits must be numbers")
	}
	if lim.Min >= lim.Max {
		return validationErrorf("position_limits", "min (%v) must be less than max (%v)", lim.Min, lim.Max)
	}
	if lim.Max > 1.0 {
		return validationErrorf("position_limits", "max (%v) must not exceed 1.0", lim.Max)
	}
	if lim.Min < -1.0 {
		return validationErrorf("position_limits", "min (%v) must not be below -1.0", lim.Min)
	}
	if lim.Min < 0 && !c.allowShort {
		return validationErrorf("position_limits", "negative min (%v) requires allow_short", lim.Min)
	}

	if c.method == MethodBlackLitterman {
		if len(c.views) == 0 {
			return validationErrorf("views", "black_litterman requires at least one view")
		}
	} else if len(c.views) > 0 {
		return validationErrorf("views", "views are only valid for %s", MethodBlackLitterman)
	}
	for ticker, r := range c.views {
		if ticker == "" {
			return validationErrorf("views", "empty ticker in views")
		}
		if err := checkReturnRange("views", ticker, r); err != nil {
			return err
		}
	}

	return nil
}

// Method returns the optimization formulation.
func (c OptimizationConfig) Method() Method { return c.method }

// RiskFreeRate returns the annual risk-free rate.
func (c OptimizationConfig) RiskFreeRate() float64 { return c.riskFreeRate }

// TargetReturn returns the optional minimum return.
func (c OptimizationConfig) TargetReturn() (float64, bool) {
	if c.targetReturn == nil {
		return 0, false
	}
	return *c.targetReturn, true
}

// AllowShort reports whether negative weights are permitted.
func (c OptimizationConfig) AllowShort() bool { return c.allowShort }

// PositionLimits returns the per-asset weight box.
func (c OptimizationConfig) PositionLimits() PositionLimits { return c.positionLimits }

// Views returns a copy of the Black-Litterman views.
func (c OptimizationConfig) Views() map[string]float64 {
	if c.views == nil {
		return nil
	}
	out := make(map[string]float64, len(c.views))
	for k, v := range c.views {
		out[k] = v
	}
	return out
}

// ViewTickers returns the tickers with views, sorted.
func (c OptimizationConfig) ViewTickers() []string {
	tickers := make([]string, 0, len(c.views))
	for k := range c.views {
		tickers = append(tickers, k)
	}
	sort.Strings(tickers)
	return tickers
}

// IsZero reports whether the config was never constructed.
func (c OptimizationConfig) IsZero() bool { return c.method == "" }
