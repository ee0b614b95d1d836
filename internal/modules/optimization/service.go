package optimization

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Optimizer runs portfolio optimizations. It holds only immutable settings, so a
// single instance may serve concurrent calls.
type Optimizer struct {
	settings SolverSettings
	solver   *Solver
	recorder MetricsRecorder
	log      zerolog.Logger
}

// NewOptimizer creates an optimizer. A nil recorder disables metrics.
func NewOptimizer(settings SolverSettings, recorder MetricsRecorder, log zerolog.Logger) *Optimizer {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	settings = settings.withDefaults()
	return &Optimizer{
		settings: settings,
		solver:   NewSolver(settings, log),
		recorder: recorder,
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// Settings returns the solver settings in effect.
func (o *Optimizer) Settings() SolverSettings { return o.settings }

// estimated is a validated problem plus the return vector used for reporting.
type estimated struct {
	problem
	tickers   []string
	muMetrics []float64
}

// prepare validates the inputs and builds the estimated problem.
func (o *Optimizer) prepare(data PortfolioDataInput, cfg OptimizationConfig) (*estimated, error) {
	if cfg.IsZero() {
		return nil, validationErrorf("config", "configuration was not constructed")
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	mu, err := EstimateReturns(data)
	if err != nil {
		return nil, err
	}
	cov, err := EstimateCovariance(data)
	if err != nil {
		return nil, err
	}
	set, err := NewFeasibleSet(len(data.Tickers), cfg.PositionLimits())
	if err != nil {
		return nil, err
	}

	e := &estimated{
		problem: problem{
			method:   cfg.Method(),
			mu:       mu,
			cov:      cov,
			riskFree: cfg.RiskFreeRate(),
			set:      set,
		},
		tickers:   append([]string(nil), data.Tickers...),
		muMetrics: mu,
	}
	e.target, e.hasTgt = cfg.TargetReturn()

	if cfg.Method() == MethodBlackLitterman {
		pi := EquilibriumReturns(cov, DefaultRiskAversion)
		post, err := PosteriorReturns(data.Tickers, cov, pi, cfg.Views(), DefaultTau)
		if err != nil {
			return nil, err
		}
		e.mu = post
		e.muMetrics = post
	}
	return e, nil
}

// Optimize validates the data, estimates returns and covariance, solves the
// configured formulation and reports validated weights with their metrics.
func (o *Optimizer) Optimize(ctx context.Context, data PortfolioDataInput, cfg OptimizationConfig) (*OptimizationOutput, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := o.log.With().Str("run_id", runID).Str("method", string(cfg.Method())).Logger()

	out, err := o.optimize(ctx, data, cfg, runID)

	outcome := "success"
	if err != nil {
		outcome = ErrorKind(err)
	}
	o.recorder.RecordOptimization(string(cfg.Method()), outcome, time.Since(start).Seconds())

	if err != nil {
		log.Warn().Err(err).Str("outcome", outcome).Msg("Optimization failed")
		return nil, err
	}
	log.Info().
		Int("assets", len(out.Tickers)).
		Int("iterations", out.Iterations).
		Float64("expected_return", out.ExpectedReturn).
		Float64("volatility", out.ExpectedVolatility).
		Float64("sharpe", out.SharpeRatio).
		Dur("elapsed", time.Since(start)).
		Msg("Optimization complete")
	return out, nil
}

func (o *Optimizer) optimize(ctx context.Context, data PortfolioDataInput, cfg OptimizationConfig, runID string) (*OptimizationOutput, error) {
	e, err := o.prepare(data, cfg)
	if err != nil {
		return nil, err
	}

	sol, err := solveProblem(ctx, o.solver, e.problem)
	if err != nil {
		return nil, err
	}

	byTicker, weights, err := ValidateWeights(sol.weights, e.tickers, cfg.PositionLimits())
	if err != nil {
		return nil, err
	}
	m, err := CalculateMetrics(weights, e.muMetrics, e.cov, cfg.RiskFreeRate())
	if err != nil {
		return nil, err
	}

	expected := make(map[string]float64, len(e.tickers))
	for i, ticker := range e.tickers {
		expected[ticker] = e.muMetrics[i]
	}

	return &OptimizationOutput{
		RunID:                runID,
		Tickers:              e.tickers,
		Method:               cfg.Method(),
		OptimalWeights:       byTicker,
		ExpectedReturn:       m.ExpectedReturn,
		ExpectedVolatility:   m.Volatility,
		SharpeRatio:          m.SharpeRatio,
		DiversificationRatio: m.DiversificationRatio,
		ExpectedReturns:      expected,
		Iterations:           sol.iterations,
	}, nil
}
