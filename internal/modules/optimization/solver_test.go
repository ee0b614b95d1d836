package optimization

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// solveDirect runs a formulation on given μ and Σ, bypassing estimation.
func solveDirect(t *testing.T, method Method, mu, cov []float64, limits PositionLimits, riskFree float64) []float64 {
	t.Helper()
	n := len(mu)
	set, err := NewFeasibleSet(n, limits)
	require.NoError(t, err)

	p := problem{
		method:   method,
		mu:       mu,
		cov:      mat.NewSymDense(n, cov),
		riskFree: riskFree,
		set:      set,
	}
	sol, err := solveProblem(context.Background(), NewSolver(DefaultSolverSettings(), zerolog.Nop()), p)
	require.NoError(t, err)

	tickers := make([]string, n)
	for i := range tickers {
		tickers[i] = string(rune('A' + i))
	}
	_, w, err := ValidateWeights(sol.weights, tickers, limits)
	require.NoError(t, err)
	return w
}

func TestScenario_MaxSharpeTwoAssets(t *testing.T) {
	mu := []float64{0.10, 0.20}
	cov := []float64{0.04, 0, 0, 0.09}

	w := solveDirect(t, MethodMaxSharpe, mu, cov, PositionLimits{Min: 0, Max: 1}, 0.04)

	assert.Greater(t, w[1], w[0])
	assert.InDelta(t, 1.0, w[0]+w[1], 1e-3)
	// Tangency portfolio ∝ Σ⁻¹(μ - r_f) = (1.5, 1.7778)
	assert.InDelta(t, 0.4576, w[0], 1e-3)
	assert.InDelta(t, 0.5424, w[1], 1e-3)
}

func TestScenario_MinVarianceTwoAssets(t *testing.T) {
	mu := []float64{0.10, 0.20}
	cov := []float64{0.04, 0, 0, 0.09}

	w := solveDirect(t, MethodMinVariance, mu, cov, PositionLimits{Min: 0, Max: 1}, 0.04)

	assert.GreaterOrEqual(t, w[0], 0.5)
	// ∝ 1/σ² = (25, 11.11)
	assert.InDelta(t, 0.6923, w[0], 1e-4)
	assert.InDelta(t, 0.3077, w[1], 1e-4)
}

func TestScenario_RiskParityInverseVolatility(t *testing.T) {
	mu := []float64{0.08, 0.12}
	cov := []float64{0.04, 0, 0, 0.09}

	w := solveDirect(t, MethodRiskParity, mu, cov, PositionLimits{Min: 0, Max: 1}, 0.02)

	assert.InDelta(t, 0.6, w[0], 0.02)
	assert.InDelta(t, 0.4, w[1], 0.02)
	assert.InDelta(t, 0.6, w[0], 1e-5)
}

func TestRiskParity_EqualContributions(t *testing.T) {
	cov := []float64{
		0.040, 0.006, 0.004,
		0.006, 0.090, 0.010,
		0.004, 0.010, 0.160,
	}
	w := solveDirect(t, MethodRiskParity, []float64{0.1, 0.1, 0.1}, cov, PositionLimits{Min: 0, Max: 1}, 0)

	sigma := mat.NewSymDense(3, cov)
	g := make([]float64, 3)
	covTimes(g, sigma, w)
	v := floats.Dot(w, g)
	for i := range w {
		assert.InDelta(t, 1.0/3, w[i]*g[i]/v, 1e-5)
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	set, err := NewFeasibleSet(2, PositionLimits{Min: 0, Max: 1})
	require.NoError(t, err)
	p := problem{method: Method("hrp"), mu: []float64{0.1, 0.1}, cov: mat.NewSymDense(2, []float64{0.04, 0, 0, 0.04}), set: set}

	_, err = solveProblem(context.Background(), NewSolver(SolverSettings{}, zerolog.Nop()), p)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDispatch_EveryMethodHasFormulation(t *testing.T) {
	for _, m := range AllMethods() {
		_, ok := formulations[m]
		assert.True(t, ok, "no formulation for %s", m)
	}
}

func TestObjectiveGradients(t *testing.T) {
	sigma := mat.NewSymDense(3, []float64{
		0.040, 0.006, -0.004,
		0.006, 0.090, 0.010,
		-0.004, 0.010, 0.160,
	})
	mu := []float64{0.07, 0.11, 0.15}
	w := []float64{0.5, 0.3, 0.2}

	objectives := map[string]Objective{
		"variance":    varianceObjective(sigma),
		"risk_parity": riskParityObjective(sigma),
		"neg_sharpe":  negativeSharpeObjective(mu, sigma, 0.02),
	}

	for name, obj := range objectives {
		t.Run(name, func(t *testing.T) {
			analytic := make([]float64, 3)
			obj.Grad(analytic, w)
			numeric := fd.Gradient(nil, obj.Func, w, &fd.Settings{Formula: fd.Central})
			for i := range analytic {
				assert.InDelta(t, numeric[i], analytic[i], 1e-6, "component %d", i)
			}
		})
	}
}

func TestFeasibleSet_Project(t *testing.T) {
	set, err := NewFeasibleSet(4, PositionLimits{Min: 0.05, Max: 0.5})
	require.NoError(t, err)

	inputs := [][]float64{
		{0.25, 0.25, 0.25, 0.25},
		{3, -2, 0.1, 0.7},
		{-1, -1, -1, -1},
		{0.9, 0.9, 0, 0},
	}
	for _, v := range inputs {
		p := make([]float64, 4)
		set.Project(p, v)
		assert.True(t, set.Contains(p, 1e-12), "projection of %v = %v", v, p)

		again := make([]float64, 4)
		set.Project(again, p)
		for i := range p {
			assert.InDelta(t, p[i], again[i], 1e-12)
		}
	}

	// Already feasible points are fixed.
	p := make([]float64, 4)
	set.Project(p, []float64{0.1, 0.2, 0.3, 0.4})
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3, 0.4}, p, 1e-12)
}

func TestFeasibleSet_ProjectWithReturnTarget(t *testing.T) {
	mu := []float64{0.05, 0.10, 0.15, 0.20}
	base, err := NewFeasibleSet(4, PositionLimits{Min: 0, Max: 0.6})
	require.NoError(t, err)

	lo, hi := base.ReturnRange(mu)
	assert.InDelta(t, 0.6*0.05+0.4*0.10, lo, 1e-12)
	assert.InDelta(t, 0.6*0.20+0.4*0.15, hi, 1e-12)

	set, ok := base.WithReturnTarget(mu, 0.14)
	require.True(t, ok)

	p := make([]float64, 4)
	set.Project(p, []float64{1, 0, 0, 0})
	assert.True(t, set.Contains(p, 1e-9), "got %v", p)
	assert.InDelta(t, 0.14, floats.Dot(p, mu), 1e-9)

	_, ok = base.WithReturnTarget(mu, 0.25)
	assert.False(t, ok)
}

func TestFeasibleSet_EqualReturnsDropHyperplane(t *testing.T) {
	base, err := NewFeasibleSet(3, PositionLimits{Min: 0, Max: 1})
	require.NoError(t, err)
	set, ok := base.WithReturnTarget([]float64{0.1, 0.1, 0.1}, 0.1)
	require.True(t, ok)
	assert.Nil(t, set.mu)
}

func TestNewFeasibleSet_InfeasibleBox(t *testing.T) {
	_, err := NewFeasibleSet(3, PositionLimits{Min: 0, Max: 0.3})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewFeasibleSet(3, PositionLimits{Min: 0.4, Max: 1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewFeasibleSet(4, PositionLimits{Min: 0, Max: 0.25})
	assert.NoError(t, err)
}

func TestSolver_IterationCapFallsBackThenFails(t *testing.T) {
	// A cap of one iteration cannot reach a tight tolerance on this problem.
	solver := NewSolver(SolverSettings{MaxIterations: 1, Tolerance: 1e-15}, zerolog.Nop())
	set, err := NewFeasibleSet(3, PositionLimits{Min: 0, Max: 1})
	require.NoError(t, err)
	sigma := mat.NewSymDense(3, []float64{
		0.040, 0.006, 0.004,
		0.006, 0.090, 0.010,
		0.004, 0.010, 0.160,
	})

	_, err = solver.Minimize(context.Background(), riskParityObjective(sigma), set, equalWeights(3))
	require.Error(t, err)
	var cf *ConvergenceFailure
	require.ErrorAs(t, err, &cf)
	assert.NotEmpty(t, cf.Status)
	assert.Positive(t, cf.Iterations)
}

func TestFindDecreasingRoot(t *testing.T) {
	f := func(x float64) float64 { return 3 - math.Max(x, 0) - 0.5*math.Max(x-1, 0) }
	root := findDecreasingRoot(f, -10, 10, 1e-14)
	assert.InDelta(t, 0, f(root), 1e-12)
	assert.InDelta(t, 7.0/3, root, 1e-12)
}

func TestCheckFeasible(t *testing.T) {
	set, err := NewFeasibleSet(3, PositionLimits{Min: 0, Max: 0.6})
	require.NoError(t, err)

	require.NoError(t, checkFeasible(set, &SolveResult{X: []float64{0.2, 0.3, 0.5}}))

	tests := []struct {
		name string
		x    []float64
	}{
		{"budget", []float64{0.2, 0.3, 0.4}},
		{"upper bound", []float64{0.7, 0.2, 0.1}},
		{"lower bound", []float64{-0.1, 0.5, 0.6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFeasible(set, &SolveResult{X: tt.x, Iterations: 7})
			var cf *ConvergenceFailure
			require.ErrorAs(t, err, &cf)
			assert.Equal(t, StatusInfeasible, cf.Status)
			assert.Equal(t, 7, cf.Iterations)
		})
	}

	t.Run("return target", func(t *testing.T) {
		mu := []float64{0.05, 0.10, 0.20}
		targeted, ok := set.WithReturnTarget(mu, 0.12)
		require.True(t, ok)
		// On budget and inside the box, but returns 0.14.
		assert.ErrorIs(t, checkFeasible(targeted, &SolveResult{X: []float64{0.2, 0.3, 0.5}}), ErrConvergence)
	})
}

func TestSolver_ResultsLieInFeasibleSet(t *testing.T) {
	solver := NewSolver(DefaultSolverSettings(), zerolog.Nop())
	sigma := mat.NewSymDense(3, []float64{
		0.040, 0.006, 0.004,
		0.006, 0.090, 0.010,
		0.004, 0.010, 0.160,
	})
	set, err := NewFeasibleSet(3, PositionLimits{Min: 0.1, Max: 0.5})
	require.NoError(t, err)
	targeted, ok := set.WithReturnTarget([]float64{0.05, 0.10, 0.20}, 0.12)
	require.True(t, ok)

	for _, fs := range []*FeasibleSet{set, targeted} {
		res, err := solver.Minimize(context.Background(), varianceObjective(sigma), fs, equalWeights(3))
		require.NoError(t, err)
		assert.True(t, fs.Contains(res.X, feasibleTolerance), "got %v", res.X)
	}
}
