package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Black-Litterman parameters.
const (
	DefaultRiskAversion = 2.5
	DefaultTau          = 0.025
)

// EquilibriumReturns computes the implied returns π = λΣw_mkt for an
// equal-weight market portfolio.
func EquilibriumReturns(cov mat.Symmetric, riskAversion float64) []float64 {
	n := cov.SymmetricDim()
	w := mat.NewVecDense(n, equalWeights(n))

	var sigmaW mat.VecDense
	sigmaW.MulVec(cov, w)

	pi := make([]float64, n)
	for i := range pi {
		pi[i] = riskAversion * sigmaW.AtVec(i)
	}
	return pi
}

// PosteriorReturns blends the prior π with absolute views on single assets:
//
//	μ_post = [(τΣ)⁻¹ + PᵗΩ⁻¹P]⁻¹ [(τΣ)⁻¹π + PᵗΩ⁻¹Q]
//
// with one-hot rows in P ordered by the universe, Q the view returns and
// Ω = diag(PΣPᵗ).
func PosteriorReturns(tickers []string, cov *mat.SymDense, pi []float64, views map[string]float64, tau float64) ([]float64, error) {
	n := len(tickers)
	index := make(map[string]int, n)
	for i, ticker := range tickers {
		index[ticker] = i
	}
	for ticker := range views {
		if _, ok := index[ticker]; !ok {
			return nil, validationErrorf("views", "view on %s which is not in the universe", ticker)
		}
	}

	var viewed []int
	for i, ticker := range tickers {
		if _, ok := views[ticker]; ok {
			viewed = append(viewed, i)
		}
	}
	k := len(viewed)
	if k == 0 {
		return nil, validationErrorf("views", "no views supplied")
	}

	P := mat.NewDense(k, n, nil)
	Q := mat.NewVecDense(k, nil)
	for row, col := range viewed {
		P.Set(row, col, 1)
		Q.SetVec(row, views[tickers[col]])
	}

	var pSigma, pSigmaPt mat.Dense
	pSigma.Mul(P, cov)
	pSigmaPt.Mul(&pSigma, P.T())

	omegaInv := make([]float64, k)
	for i := range omegaInv {
		omega := pSigmaPt.At(i, i)
		if !(omega > 0) {
			return nil, &ConvergenceFailure{
				Method:  MethodBlackLitterman,
				Status:  "ill_conditioned",
				Message: "view uncertainty is not positive",
			}
		}
		omegaInv[i] = 1 / omega
	}
	omegaInvM := mat.NewDiagDense(k, omegaInv)

	var tauSigma mat.SymDense
	tauSigma.ScaleSym(tau, cov)
	var tauChol mat.Cholesky
	if ok := tauChol.Factorize(&tauSigma); !ok {
		return nil, illConditioned("τΣ is not positive definite")
	}
	var tauSigmaInv mat.SymDense
	if err := tauChol.InverseTo(&tauSigmaInv); err != nil {
		return nil, illConditioned("cannot invert τΣ: " + err.Error())
	}

	// Precision of the posterior: (τΣ)⁻¹ + PᵗΩ⁻¹P
	var ptOmegaInv, viewPrecision mat.Dense
	ptOmegaInv.Mul(P.T(), omegaInvM)
	viewPrecision.Mul(&ptOmegaInv, P)

	precision := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			vp := 0.5 * (viewPrecision.At(i, j) + viewPrecision.At(j, i))
			precision.SetSym(i, j, tauSigmaInv.At(i, j)+vp)
		}
	}

	// (τΣ)⁻¹π + PᵗΩ⁻¹Q
	var priorTerm, viewTerm, rhs mat.VecDense
	priorTerm.MulVec(&tauSigmaInv, mat.NewVecDense(n, append([]float64(nil), pi...)))
	viewTerm.MulVec(&ptOmegaInv, Q)
	rhs.AddVec(&priorTerm, &viewTerm)

	var chol mat.Cholesky
	if ok := chol.Factorize(precision); !ok {
		return nil, illConditioned("posterior precision is not positive definite")
	}
	var post mat.VecDense
	if err := chol.SolveVecTo(&post, &rhs); err != nil {
		return nil, illConditioned("cannot solve for posterior returns: " + err.Error())
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = post.AtVec(i)
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			return nil, illConditioned("posterior return is not finite")
		}
	}
	return out, nil
}

func illConditioned(msg string) *ConvergenceFailure {
	return &ConvergenceFailure{
		Method:  MethodBlackLitterman,
		Status:  "ill_conditioned",
		Message: msg + "; the covariance matrix may be ill-conditioned",
	}
}
