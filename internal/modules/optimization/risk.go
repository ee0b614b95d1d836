package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// EstimateCovariance builds the annualized sample covariance matrix (N-1
// denominator, scaled by 252) from daily percentage returns.
func EstimateCovariance(data PortfolioDataInput) (*mat.SymDense, error) {
	raw, rows, err := dailyReturnMatrix(data)
	if err != nil {
		return nil, err
	}
	n := len(data.Tickers)

	returns := mat.NewDense(rows, n, raw)
	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, returns, nil)
	cov.ScaleSym(TradingDaysPerYear, cov)

	for i, ticker := range data.Tickers {
		v := cov.At(i, i)
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, validationErrorf("prices", "series for %s has zero variance", ticker)
		}
	}
	return cov, nil
}

// Volatilities returns the square roots of the covariance diagonal.
func Volatilities(cov mat.Symmetric) []float64 {
	n := cov.SymmetricDim()
	vols := make([]float64, n)
	for i := 0; i < n; i++ {
		vols[i] = math.Sqrt(cov.At(i, i))
	}
	return vols
}

// portfolioVariance returns wᵗΣw.
func portfolioVariance(cov mat.Symmetric, w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, cov, v)
}

// covTimes computes Σw into dst.
func covTimes(dst []float64, cov mat.Symmetric, w []float64) {
	out := mat.NewVecDense(len(dst), dst)
	out.MulVec(cov, mat.NewVecDense(len(w), w))
}
