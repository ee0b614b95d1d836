package optimization

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Frontier sweep defaults.
const (
	DefaultFrontierPoints = 50
	MinFrontierPoints     = 10

	// frontierCeiling keeps the last target below the single best asset, where
	// the equality-constrained problem degenerates.
	frontierCeiling = 0.95
)

// FrontierOptions controls an efficient frontier sweep.
type FrontierOptions struct {
	// Points is the number of target returns (default 50, at least 10).
	Points int
	// Workers bounds concurrent solves (default GOMAXPROCS).
	Workers int
	// OnPoint, if set, is called once per solved point. Calls are serialized but
	// arrive in completion order, not index order.
	OnPoint func(FrontierPoint)
}

// EfficientFrontier traces minimum-variance portfolios for evenly spaced target
// returns between the minimum-variance return and 95% of the largest expected
// return. Targets the solver cannot reach are skipped; any other error aborts the
// sweep. For Black-Litterman configurations the posterior returns are used.
func (o *Optimizer) EfficientFrontier(ctx context.Context, data PortfolioDataInput, cfg OptimizationConfig, opts FrontierOptions) (*EfficientFrontierOutput, error) {
	start := time.Now()
	points := opts.Points
	if points == 0 {
		points = DefaultFrontierPoints
	}
	if points < MinFrontierPoints {
		return nil, validationErrorf("points", "at least %d frontier points required, got %d", MinFrontierPoints, points)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log := o.log.With().Str("method", string(cfg.Method())).Int("points", points).Logger()

	e, err := o.prepare(data, cfg)
	if err != nil {
		return nil, err
	}

	base, err := solveMinVariance(ctx, o.solver, e.problem)
	if err != nil {
		return nil, err
	}
	minReturn := floats.Dot(base.weights, e.mu)
	maxReturn := floats.Max(e.mu)

	targets := make([]float64, points)
	floats.Span(targets, minReturn, frontierCeiling*maxReturn)

	results := make([]*FrontierPoint, points)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, target := range targets {
		g.Go(func() error {
			sol, err := solveWithReturnTarget(gctx, o.solver, e.problem, target)
			if err != nil {
				var cf *ConvergenceFailure
				if errors.As(err, &cf) && cf.Status != StatusCancelled {
					o.recorder.RecordFrontierPoint("skipped")
					log.Debug().Int("index", i).Float64("target", target).Str("status", cf.Status).
						Msg("Skipping unreachable frontier point")
					return nil
				}
				return err
			}

			byTicker, w, err := ValidateWeights(sol.weights, e.tickers, cfg.PositionLimits())
			if err != nil {
				return err
			}
			m, err := CalculateMetrics(w, e.mu, e.cov, cfg.RiskFreeRate())
			if err != nil {
				return err
			}

			pt := &FrontierPoint{
				Index:        i,
				TargetReturn: target,
				Return:       m.ExpectedReturn,
				Volatility:   m.Volatility,
				Sharpe:       m.SharpeRatio,
				Weights:      byTicker,
			}
			results[i] = pt
			o.recorder.RecordFrontierPoint("solved")

			if opts.OnPoint != nil {
				mu.Lock()
				opts.OnPoint(*pt)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("Efficient frontier aborted")
		return nil, err
	}

	out := &EfficientFrontierOutput{
		Tickers:               e.tickers,
		OptimalPortfolioIndex: -1,
		RequestedPoints:       points,
	}
	best := 0.0
	for _, pt := range results {
		if pt == nil {
			out.SkippedPoints++
			continue
		}
		if out.OptimalPortfolioIndex < 0 || pt.Sharpe > best {
			out.OptimalPortfolioIndex = len(out.Returns)
			best = pt.Sharpe
		}
		out.TargetReturns = append(out.TargetReturns, pt.TargetReturn)
		out.Returns = append(out.Returns, pt.Return)
		out.Volatilities = append(out.Volatilities, pt.Volatility)
		out.SharpeRatios = append(out.SharpeRatios, pt.Sharpe)
		out.Weights = append(out.Weights, pt.Weights)
	}

	if len(out.Returns) == 0 {
		return nil, &ConvergenceFailure{
			Method:  cfg.Method(),
			Status:  "no_points",
			Message: "no frontier point could be solved",
		}
	}
	if len(out.Returns) < MinFrontierPoints {
		log.Warn().Int("solved", len(out.Returns)).Msg("Efficient frontier has fewer points than requested minimum")
	}

	log.Info().
		Int("solved", len(out.Returns)).
		Int("skipped", out.SkippedPoints).
		Int("optimal_index", out.OptimalPortfolioIndex).
		Dur("elapsed", time.Since(start)).
		Msg("Efficient frontier complete")
	return out, nil
}
