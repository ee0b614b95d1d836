package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Solver defaults.
const (
	DefaultMaxIterations = 1000
	DefaultTolerance     = 1e-9

	// acceptTolerance is the projected-gradient norm a stalled run must still reach
	// to count as a stationary point.
	acceptTolerance = 1e-6

	// feasibleTolerance is the constraint slack a final iterate may carry.
	feasibleTolerance = 1e-8

	armijoGamma   = 1e-4
	nonmonotoneM  = 10
	stepLengthMin = 1e-12
	stepLengthMax = 1e12
)

// Solver statuses reported in results and ConvergenceFailure.
const (
	StatusConverged  = "converged"
	StatusStalled    = "stalled"
	StatusMaxIter    = "iteration_limit"
	StatusFallback   = "fallback"
	StatusCancelled  = "cancelled"
	StatusInfeasible = "infeasible"
)

// SolverSettings bounds the work done by one solve.
type SolverSettings struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
}

// DefaultSolverSettings returns the standard iteration cap and tolerance.
func DefaultSolverSettings() SolverSettings {
	return SolverSettings{MaxIterations: DefaultMaxIterations, Tolerance: DefaultTolerance}
}

func (s SolverSettings) withDefaults() SolverSettings {
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if !(s.Tolerance > 0) {
		s.Tolerance = DefaultTolerance
	}
	return s
}

// Objective is a smooth function over weights with its gradient.
type Objective struct {
	Func func(w []float64) float64
	Grad func(grad, w []float64)
}

// SolveResult is the outcome of a successful minimization.
type SolveResult struct {
	X            []float64
	F            float64
	Iterations   int
	Status       string
	ProjGradNorm float64
}

// Solver minimizes an Objective over a FeasibleSet by spectral projected gradient,
// with a derivative-free fallback.
type Solver struct {
	settings SolverSettings
	log      zerolog.Logger
}

// NewSolver creates a solver. Zero settings fall back to defaults.
func NewSolver(settings SolverSettings, log zerolog.Logger) *Solver {
	return &Solver{
		settings: settings.withDefaults(),
		log:      log.With().Str("component", "solver").Logger(),
	}
}

// Minimize runs projected gradient from x0. If that does not reach a stationary
// point, Nelder-Mead on the projected objective provides a new start that is
// polished by another projected-gradient run. The final point must lie in fs.
func (s *Solver) Minimize(ctx context.Context, obj Objective, fs *FeasibleSet, x0 []float64) (*SolveResult, error) {
	res, err := s.minimize(ctx, obj, fs, x0)
	if err != nil {
		return nil, err
	}
	if err := checkFeasible(fs, res); err != nil {
		return nil, err
	}
	return res, nil
}

// checkFeasible rejects a result that drifted off the feasible set.
func checkFeasible(fs *FeasibleSet, res *SolveResult) error {
	if fs.Contains(res.X, feasibleTolerance) {
		return nil
	}
	return &ConvergenceFailure{
		Status:     StatusInfeasible,
		Iterations: res.Iterations,
		Message:    fmt.Sprintf("final iterate lies outside the feasible set (tolerance %g)", feasibleTolerance),
	}
}

func (s *Solver) minimize(ctx context.Context, obj Objective, fs *FeasibleSet, x0 []float64) (*SolveResult, error) {
	res, err := s.spg(ctx, obj, fs, x0)
	if err != nil {
		return nil, err
	}
	if res.Status == StatusConverged || res.ProjGradNorm <= acceptTolerance {
		return res, nil
	}

	s.log.Debug().
		Str("status", res.Status).
		Int("iterations", res.Iterations).
		Float64("proj_grad_norm", res.ProjGradNorm).
		Msg("Projected gradient did not converge, trying Nelder-Mead fallback")

	start, nmIters, err := s.nelderMead(ctx, obj, fs, res.X)
	if err != nil {
		return nil, err
	}
	polished, err := s.spg(ctx, obj, fs, start)
	if err != nil {
		return nil, err
	}
	polished.Iterations += res.Iterations + nmIters
	if polished.Status == StatusConverged || polished.ProjGradNorm <= acceptTolerance {
		polished.Status = StatusFallback
		return polished, nil
	}

	return nil, &ConvergenceFailure{
		Status:     polished.Status,
		Iterations: polished.Iterations,
		Message:    fmt.Sprintf("no stationary point found (projected gradient norm %.3g)", polished.ProjGradNorm),
	}
}

// spg is the nonmonotone spectral projected gradient method of Birgin, Martínez
// and Raydan with Barzilai-Borwein step lengths.
func (s *Solver) spg(ctx context.Context, obj Objective, fs *FeasibleSet, x0 []float64) (*SolveResult, error) {
	n := fs.Dim()
	x := make([]float64, n)
	fs.Project(x, x0)

	g := make([]float64, n)
	obj.Grad(g, x)
	f := obj.Func(x)

	tmp := make([]float64, n)
	d := make([]float64, n)
	xn := make([]float64, n)
	gn := make([]float64, n)
	sv := make([]float64, n)
	yv := make([]float64, n)

	history := make([]float64, 0, nonmonotoneM)
	history = append(history, f)

	pgNorm := s.projGradNorm(fs, x, g, tmp)
	lambda := clampStep(1 / math.Max(pgNorm, 1e-300))

	status := StatusMaxIter
	iter := 0
	for ; iter < s.settings.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, &ConvergenceFailure{Status: StatusCancelled, Iterations: iter, Message: err.Error()}
		}
		if pgNorm < s.settings.Tolerance {
			status = StatusConverged
			break
		}

		// d = P(x - λg) - x
		floats.AddScaledTo(tmp, x, -lambda, g)
		fs.Project(d, tmp)
		floats.Sub(d, x)
		gd := floats.Dot(g, d)

		fmax := history[0]
		for _, v := range history[1:] {
			fmax = math.Max(fmax, v)
		}

		alpha := 1.0
		var fn float64
		accepted := false
		for alpha > 1e-20 {
			floats.AddScaledTo(xn, x, alpha, d)
			fn = obj.Func(xn)
			if fn <= fmax+armijoGamma*alpha*gd {
				accepted = true
				break
			}
			// Safeguarded quadratic interpolation.
			atmp := -0.5 * alpha * alpha * gd / (fn - f - alpha*gd)
			if atmp >= 0.1*alpha && atmp <= 0.9*alpha && !math.IsNaN(atmp) {
				alpha = atmp
			} else {
				alpha /= 2
			}
		}
		if !accepted {
			status = StatusStalled
			break
		}

		obj.Grad(gn, xn)
		floats.SubTo(sv, xn, x)
		floats.SubTo(yv, gn, g)
		sy := floats.Dot(sv, yv)
		if sy <= 0 {
			lambda = stepLengthMax
		} else {
			lambda = clampStep(floats.Dot(sv, sv) / sy)
		}

		stepNorm := floats.Norm(sv, math.Inf(1))
		copy(x, xn)
		copy(g, gn)
		f = fn
		if len(history) == nonmonotoneM {
			history = history[1:]
		}
		history = append(history, f)
		pgNorm = s.projGradNorm(fs, x, g, tmp)

		if stepNorm < 1e-16 && pgNorm >= s.settings.Tolerance {
			status = StatusStalled
			iter++
			break
		}
	}
	if pgNorm < s.settings.Tolerance {
		status = StatusConverged
	}

	return &SolveResult{X: x, F: f, Iterations: iter, Status: status, ProjGradNorm: pgNorm}, nil
}

// projGradNorm returns ||P(x - g) - x||∞, which is zero exactly at stationary points.
func (s *Solver) projGradNorm(fs *FeasibleSet, x, g, tmp []float64) float64 {
	floats.SubTo(tmp, x, g)
	p := make([]float64, len(x))
	fs.Project(p, tmp)
	floats.Sub(p, x)
	return floats.Norm(p, math.Inf(1))
}

// nelderMead minimizes f∘P with gonum's simplex method and returns the projected
// minimizer.
func (s *Solver) nelderMead(ctx context.Context, obj Objective, fs *FeasibleSet, x0 []float64) ([]float64, int, error) {
	n := fs.Dim()
	proj := make([]float64, n)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			fs.Project(proj, x)
			return obj.Func(proj)
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	settings := &optimize.Settings{
		MajorIterations: s.settings.MaxIterations,
		FuncEvaluations: 20 * s.settings.MaxIterations,
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, 0, &ConvergenceFailure{Status: StatusCancelled, Message: ctxErr.Error()}
	}
	if result == nil {
		msg := "nelder-mead failed"
		if err != nil {
			msg = err.Error()
		}
		return nil, 0, &ConvergenceFailure{Status: StatusStalled, Message: msg}
	}
	// Iteration or evaluation limits still leave a usable point to polish.

	out := make([]float64, n)
	fs.Project(out, result.X)
	return out, result.Stats.MajorIterations, nil
}

func clampStep(v float64) float64 {
	if math.IsNaN(v) {
		return stepLengthMax
	}
	return math.Min(math.Max(v, stepLengthMin), stepLengthMax)
}
