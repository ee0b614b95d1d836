package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// problem is one fully estimated optimization instance.
type problem struct {
	method   Method
	mu       []float64
	cov      *mat.SymDense
	riskFree float64
	target   float64
	hasTgt   bool
	set      *FeasibleSet
}

type solution struct {
	weights    []float64
	iterations int
	status     string
}

// formulation turns a problem into optimal raw weights.
type formulation func(ctx context.Context, s *Solver, p problem) (solution, error)

// formulations is the strategy dispatch table. Black-Litterman solves the
// minimum-variance problem; its posterior returns only feed the reported metrics.
var formulations = map[Method]formulation{
	MethodMeanVariance:   solveMeanVariance,
	MethodRiskParity:     solveRiskParity,
	MethodMinVariance:    solveMinVariance,
	MethodMaxSharpe:      solveMaxSharpe,
	MethodBlackLitterman: solveMinVariance,
}

// solveProblem dispatches to the method's formulation. Unknown methods are a
// validation error rather than a silent default.
func solveProblem(ctx context.Context, s *Solver, p problem) (solution, error) {
	f, ok := formulations[p.method]
	if !ok {
		return solution{}, validationErrorf("method", "unknown optimization method %q", p.method)
	}
	sol, err := f(ctx, s, p)
	if err != nil {
		var cf *ConvergenceFailure
		if errors.As(err, &cf) && cf.Method == "" {
			cf.Method = p.method
		}
		return solution{}, err
	}
	return sol, nil
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

func run(ctx context.Context, s *Solver, obj Objective, set *FeasibleSet) (solution, error) {
	res, err := s.Minimize(ctx, obj, set, equalWeights(set.Dim()))
	if err != nil {
		return solution{}, err
	}
	return solution{weights: res.X, iterations: res.Iterations, status: res.Status}, nil
}

func solveMinVariance(ctx context.Context, s *Solver, p problem) (solution, error) {
	return run(ctx, s, varianceObjective(p.cov), p.set)
}

// solveMeanVariance minimizes variance subject to an optional minimum return.
// The problem is convex, so when the unconstrained minimum already meets the
// target the constraint is inactive; otherwise it binds with equality.
func solveMeanVariance(ctx context.Context, s *Solver, p problem) (solution, error) {
	base, err := solveMinVariance(ctx, s, p)
	if err != nil || !p.hasTgt {
		return base, err
	}
	if floats.Dot(base.weights, p.mu) >= p.target-1e-10 {
		return base, nil
	}

	sol, err := solveWithReturnTarget(ctx, s, p, p.target)
	if err != nil {
		return solution{}, err
	}
	sol.iterations += base.iterations
	return sol, nil
}

// solveWithReturnTarget minimizes variance on the hyperplane μᵗw = target.
func solveWithReturnTarget(ctx context.Context, s *Solver, p problem, target float64) (solution, error) {
	set, ok := p.set.WithReturnTarget(p.mu, target)
	if !ok {
		lo, hi := p.set.ReturnRange(p.mu)
		return solution{}, &ConvergenceFailure{
			Method:  p.method,
			Status:  StatusInfeasible,
			Message: fmt.Sprintf("target return %.6f outside achievable range [%.6f, %.6f]", target, lo, hi),
		}
	}
	return run(ctx, s, varianceObjective(p.cov), set)
}

func solveRiskParity(ctx context.Context, s *Solver, p problem) (solution, error) {
	return run(ctx, s, riskParityObjective(p.cov), p.set)
}

func solveMaxSharpe(ctx context.Context, s *Solver, p problem) (solution, error) {
	return run(ctx, s, negativeSharpeObjective(p.mu, p.cov, p.riskFree), p.set)
}

// varianceObjective is wᵗΣw with gradient 2Σw.
func varianceObjective(cov *mat.SymDense) Objective {
	return Objective{
		Func: func(w []float64) float64 {
			return portfolioVariance(cov, w)
		},
		Grad: func(grad, w []float64) {
			covTimes(grad, cov, w)
			floats.Scale(2, grad)
		},
	}
}

// riskParityObjective is Σ(cᵢ - 1/n)² where cᵢ = wᵢ(Σw)ᵢ / wᵗΣw is the share of
// portfolio variance contributed by asset i.
func riskParityObjective(cov *mat.SymDense) Objective {
	n := cov.SymmetricDim()
	target := 1 / float64(n)

	contributions := func(w, g, c []float64) float64 {
		covTimes(g, cov, w)
		v := floats.Dot(w, g)
		for i := range c {
			c[i] = w[i] * g[i] / v
		}
		return v
	}

	return Objective{
		Func: func(w []float64) float64 {
			g := make([]float64, n)
			c := make([]float64, n)
			if v := contributions(w, g, c); !(v > 0) {
				return math.Inf(1)
			}
			f := 0.0
			for _, ci := range c {
				f += (ci - target) * (ci - target)
			}
			return f
		},
		Grad: func(grad, w []float64) {
			g := make([]float64, n)
			c := make([]float64, n)
			v := contributions(w, g, c)
			if !(v > 0) {
				for i := range grad {
					grad[i] = 0
				}
				return
			}

			d := make([]float64, n)
			dw := make([]float64, n)
			dc := 0.0
			for i := range d {
				d[i] = 2 * (c[i] - target)
				dw[i] = d[i] * w[i]
				dc += d[i] * c[i]
			}
			covTimes(grad, cov, dw)
			for k := range grad {
				grad[k] = (d[k]*g[k] + grad[k] - 2*g[k]*dc) / v
			}
		},
	}
}

// negativeSharpeObjective is -(μᵗw - r_f)/σ(w).
func negativeSharpeObjective(mu []float64, cov *mat.SymDense, riskFree float64) Objective {
	n := len(mu)
	return Objective{
		Func: func(w []float64) float64 {
			v := portfolioVariance(cov, w)
			if !(v > 0) {
				return math.Inf(1)
			}
			return -(floats.Dot(mu, w) - riskFree) / math.Sqrt(v)
		},
		Grad: func(grad, w []float64) {
			g := make([]float64, n)
			covTimes(g, cov, w)
			v := floats.Dot(w, g)
			if !(v > 0) {
				for i := range grad {
					grad[i] = 0
				}
				return
			}
			sigma := math.Sqrt(v)
			excess := floats.Dot(mu, w) - riskFree
			for i := range grad {
				grad[i] = -mu[i]/sigma + excess*g[i]/(sigma*v)
			}
		},
	}
}
