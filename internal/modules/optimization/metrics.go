package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// diversificationSlack is how far below 1 a diversification ratio may fall before
// it is treated as a real violation rather than rounding.
const diversificationSlack = 1e-9

// PortfolioMetrics are the risk and return statistics of a weight vector.
type PortfolioMetrics struct {
	ExpectedReturn       float64 `json:"expected_return"`
	Volatility           float64 `json:"volatility"`
	SharpeRatio          float64 `json:"sharpe_ratio"`
	DiversificationRatio float64 `json:"diversification_ratio"`
}

// CalculateMetrics computes return μᵗw, volatility √(wᵗΣw), Sharpe
// (return - r_f)/volatility and the diversification ratio Σ|wᵢ|σᵢ / volatility.
// For long-only weights the numerator is wᵗσ. Short legs count at their gross
// size, so a long/short book is measured against the volatility of its parts
// rather than netted down below one.
func CalculateMetrics(w, mu []float64, cov mat.Symmetric, riskFree float64) (PortfolioMetrics, error) {
	variance := portfolioVariance(cov, w)
	if !(variance > 0) {
		return PortfolioMetrics{}, &InvariantViolation{Name: "volatility", Value: math.Sqrt(math.Max(variance, 0))}
	}
	vol := math.Sqrt(variance)
	ret := floats.Dot(w, mu)

	vols := Volatilities(cov)
	weighted := 0.0
	for i, wi := range w {
		weighted += math.Abs(wi) * vols[i]
	}
	dr := weighted / vol
	if dr < 1-diversificationSlack || math.IsNaN(dr) {
		return PortfolioMetrics{}, &InvariantViolation{Name: "diversification_ratio", Value: dr}
	}
	if dr < 1 {
		dr = 1
	}

	return PortfolioMetrics{
		ExpectedReturn:       ret,
		Volatility:           vol,
		SharpeRatio:          (ret - riskFree) / vol,
		DiversificationRatio: dr,
	}, nil
}
