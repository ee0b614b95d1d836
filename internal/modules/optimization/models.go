package optimization

import (
	"math"
	"strings"
	"time"
)

// Method is an optimization formulation tag.
type Method string

const (
	MethodMeanVariance   Method = "mean_variance"
	MethodRiskParity     Method = "risk_parity"
	MethodMinVariance    Method = "min_variance"
	MethodMaxSharpe      Method = "max_sharpe"
	MethodBlackLitterman Method = "black_litterman"
)

// AllMethods returns every supported method in a stable order.
func AllMethods() []Method {
	return []Method{
		MethodMeanVariance,
		MethodRiskParity,
		MethodMinVariance,
		MethodMaxSharpe,
		MethodBlackLitterman,
	}
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	for _, known := range AllMethods() {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMethod converts a configuration tag into a Method.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.TrimSpace(strings.ToLower(s)))
	if m.Valid() {
		return m, nil
	}
	return "", validationErrorf("method", "unknown optimization method %q", s)
}

// Annualization and sanity constants.
const (
	TradingDaysPerYear = 252
	MinHistoryLength   = 30
	MinExpectedReturn  = -0.90
	MaxExpectedReturn  = 2.0
)

// PositionLimits is the uniform per-asset weight box.
type PositionLimits struct {
	Min float64 `json:"min" msgpack:"min"`
	Max float64 `json:"max" msgpack:"max"`
}

// PortfolioDataInput is the price history (and optional forecasts) for one call.
// Prices are keyed by ticker and aligned to Dates.
type PortfolioDataInput struct {
	Tickers         []string             `json:"tickers"`
	Dates           []time.Time          `json:"dates"`
	Prices          map[string][]float64 `json:"prices"`
	ExpectedReturns map[string]float64   `json:"expected_returns,omitempty"`
}

// Validate checks the structural invariants of the input.
func (d PortfolioDataInput) Validate() error {
	if len(d.Tickers) < 2 {
		return validationErrorf("tickers", "at least 2 tickers required, got %d", len(d.Tickers))
	}

	seen := make(map[string]bool, len(d.Tickers))
	for _, ticker := range d.Tickers {
		if ticker == "" {
			return validationErrorf("tickers", "empty ticker")
		}
		if strings.ToUpper(ticker) != ticker {
			return validationErrorf("tickers", "ticker %q must be uppercase", ticker)
		}
		if seen[ticker] {
			return validationErrorf("tickers", "duplicate ticker %q", ticker)
		}
		seen[ticker] = true
	}

	if len(d.Dates) < MinHistoryLength {
		return validationErrorf("dates", "insufficient price history: %d dates (need at least %d)",
			len(d.Dates), MinHistoryLength)
	}
	for i := 1; i < len(d.Dates); i++ {
		if !d.Dates[i].After(d.Dates[i-1]) {
			return validationErrorf("dates", "dates must be strictly increasing (index %d)", i)
		}
	}

	for ticker := range d.Prices {
		if !seen[ticker] {
			return validationErrorf("prices", "price series for %q which is not in the universe", ticker)
		}
	}
	for _, ticker := range d.Tickers {
		series, ok := d.Prices[ticker]
		if !ok {
			return validationErrorf("prices", "missing price series for %s", ticker)
		}
		if len(series) != len(d.Dates) {
			return validationErrorf("prices", "series for %s has %d prices, expected %d",
				ticker, len(series), len(d.Dates))
		}
		for i, p := range series {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return validationErrorf("prices", "non-positive or non-finite price %v for %s at index %d",
					p, ticker, i)
			}
		}
	}

	if d.ExpectedReturns != nil {
		if len(d.ExpectedReturns) != len(d.Tickers) {
			return validationErrorf("expected_returns", "expected %d forecasts, got %d",
				len(d.Tickers), len(d.ExpectedReturns))
		}
		for _, ticker := range d.Tickers {
			r, ok := d.ExpectedReturns[ticker]
			if !ok {
				return validationErrorf("expected_returns", "missing forecast for %s", ticker)
			}
			if err := checkReturnRange("expected_returns", ticker, r); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkReturnRange(field, ticker string, r float64) error {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return validationErrorf(field, "non-finite return for %s", ticker)
	}
	if r < MinExpectedReturn || r > MaxExpectedReturn {
		return validationErrorf(field, "return %.4f for %s outside [%.2f, %.2f]",
			r, ticker, MinExpectedReturn, MaxExpectedReturn)
	}
	return nil
}

// OptimizationOutput is the result of one optimization call.
type OptimizationOutput struct {
	RunID                string             `json:"run_id" msgpack:"run_id"`
	Tickers              []string           `json:"tickers" msgpack:"tickers"`
	Method               Method             `json:"method" msgpack:"method"`
	OptimalWeights       map[string]float64 `json:"optimal_weights" msgpack:"optimal_weights"`
	ExpectedReturn       float64            `json:"expected_return" msgpack:"expected_return"`
	ExpectedVolatility   float64            `json:"expected_volatility" msgpack:"expected_volatility"`
	SharpeRatio          float64            `json:"sharpe_ratio" msgpack:"sharpe_ratio"`
	DiversificationRatio float64            `json:"diversification_ratio" msgpack:"diversification_ratio"`
	ExpectedReturns      map[string]float64 `json:"expected_returns" msgpack:"expected_returns"`
	Iterations           int                `json:"iterations" msgpack:"iterations"`
}

// Weights returns the optimal weights in ticker order.
func (o *OptimizationOutput) Weights() []float64 {
	w := make([]float64, len(o.Tickers))
	for i, ticker := range o.Tickers {
		w[i] = o.OptimalWeights[ticker]
	}
	return w
}

// Allocation converts weights into a notional amount per ticker for display.
func (o *OptimizationOutput) Allocation(capital float64) map[string]float64 {
	alloc := make(map[string]float64, len(o.OptimalWeights))
	for ticker, w := range o.OptimalWeights {
		alloc[ticker] = w * capital
	}
	return alloc
}

// FrontierPoint is one solved point of the efficient frontier.
type FrontierPoint struct {
	Index        int                `json:"index" msgpack:"index"`
	TargetReturn float64            `json:"target_return" msgpack:"target_return"`
	Return       float64            `json:"return" msgpack:"return"`
	Volatility   float64            `json:"volatility" msgpack:"volatility"`
	Sharpe       float64            `json:"sharpe" msgpack:"sharpe"`
	Weights      map[string]float64 `json:"weights" msgpack:"weights"`
}

// EfficientFrontierOutput holds parallel arrays describing the frontier.
type EfficientFrontierOutput struct {
	Tickers               []string             `json:"tickers" msgpack:"tickers"`
	TargetReturns         []float64            `json:"target_returns" msgpack:"target_returns"`
	Returns               []float64            `json:"returns" msgpack:"returns"`
	Volatilities          []float64            `json:"volatilities" msgpack:"volatilities"`
	SharpeRatios          []float64            `json:"sharpe_ratios" msgpack:"sharpe_ratios"`
	Weights               []map[string]float64 `json:"weights" msgpack:"weights"`
	OptimalPortfolioIndex int                  `json:"optimal_portfolio_index" msgpack:"optimal_portfolio_index"`
	RequestedPoints       int                  `json:"requested_points" msgpack:"requested_points"`
	SkippedPoints         int                  `json:"skipped_points" msgpack:"skipped_points"`
}
