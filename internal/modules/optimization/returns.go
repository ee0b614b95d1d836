package optimization

import (
	"github.com/aristath/allocator/pkg/formulas"
)

// EstimateReturns produces the annualized expected return vector in ticker order.
// Supplied forecasts are used verbatim. Otherwise the arithmetic mean of daily
// returns is compounded over a trading year.
func EstimateReturns(data PortfolioDataInput) ([]float64, error) {
	mu := make([]float64, len(data.Tickers))

	if data.ExpectedReturns != nil {
		for i, ticker := range data.Tickers {
			r, ok := data.ExpectedReturns[ticker]
			if !ok {
				return nil, validationErrorf("expected_returns", "missing forecast for %s", ticker)
			}
			mu[i] = r
		}
		return mu, nil
	}

	for i, ticker := range data.Tickers {
		daily := formulas.CalculateReturns(data.Prices[ticker])
		if len(daily) == 0 {
			return nil, validationErrorf("prices", "not enough prices for %s", ticker)
		}
		annual := formulas.AnnualizeGeometric(formulas.Mean(daily), TradingDaysPerYear)
		if err := checkReturnRange("expected_returns", ticker, annual); err != nil {
			return nil, err
		}
		mu[i] = annual
	}
	return mu, nil
}

// dailyReturnMatrix returns the (T-1) x n matrix of daily percentage returns,
// row-major, one column per ticker.
func dailyReturnMatrix(data PortfolioDataInput) ([]float64, int, error) {
	n := len(data.Tickers)
	var rows int
	cols := make([][]float64, n)
	for j, ticker := range data.Tickers {
		cols[j] = formulas.CalculateReturns(data.Prices[ticker])
		if j == 0 {
			rows = len(cols[j])
		}
		if len(cols[j]) != rows {
			return nil, 0, validationErrorf("prices", "inconsistent series length for %s", ticker)
		}
	}
	if rows < 2 {
		return nil, 0, validationErrorf("prices", "need at least 2 return observations, got %d", rows)
	}

	out := make([]float64, rows*n)
	for j := range cols {
		for t, r := range cols[j] {
			out[t*n+j] = r
		}
	}
	return out, rows, nil
}
