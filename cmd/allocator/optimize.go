package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/optimization/handlers"
	"github.com/aristath/allocator/internal/modules/universe"
)

// runFlags are shared by optimize and frontier.
type runFlags struct {
	dataFile     string
	tickers      []string
	lookbackDays int

	method     string
	riskFree   float64
	target     float64
	allowShort bool
	minWeight  float64
	maxWeight  float64
	views      map[string]string

	capital float64
	format  string
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.dataFile, "data", "", "JSON file with tickers, dates, prices and optional expected_returns")
	fl.StringSliceVar(&f.tickers, "tickers", nil, "load these tickers from the price history database")
	fl.IntVar(&f.lookbackDays, "lookback", optimization.TradingDaysPerYear, "trading days of history to use with --tickers (0 = all)")
	fl.StringVarP(&f.method, "method", "m", "", "optimization method (see allocator methods)")
	fl.Float64Var(&f.riskFree, "risk-free", 0, "annual risk-free rate (default: $DEFAULT_RISK_FREE_RATE)")
	fl.Float64Var(&f.target, "target-return", 0, "minimum annual return (mean_variance only)")
	fl.BoolVar(&f.allowShort, "allow-short", false, "allow negative weights")
	fl.Float64Var(&f.minWeight, "min-weight", 0, "lower bound on each weight")
	fl.Float64Var(&f.maxWeight, "max-weight", 1, "upper bound on each weight")
	fl.StringToStringVar(&f.views, "view", nil, "Black-Litterman view TICKER=RETURN (repeatable)")
	fl.StringVarP(&f.format, "output", "o", "table", "output format: table or json")
	_ = cmd.MarkFlagRequired("method")
}

// configDTO reuses the HTTP request shape so both surfaces share parsing rules.
func (f *runFlags) configDTO(cmd *cobra.Command) (handlers.ConfigDTO, error) {
	dto := handlers.ConfigDTO{
		Method:     f.method,
		AllowShort: f.allowShort,
	}
	if cmd.Flags().Changed("risk-free") {
		dto.RiskFreeRate = &f.riskFree
	}
	if cmd.Flags().Changed("target-return") {
		dto.TargetReturn = &f.target
	}
	if cmd.Flags().Changed("min-weight") || cmd.Flags().Changed("max-weight") {
		dto.PositionLimits = &handlers.PositionLimitsDTO{Min: f.minWeight, Max: f.maxWeight}
	}
	views, err := parseViews(f.views)
	if err != nil {
		return dto, err
	}
	dto.Views = views
	return dto, nil
}

func parseViews(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	views := make(map[string]float64, len(raw))
	for ticker, value := range raw {
		r, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, &optimization.ValidationError{Field: "views", Message: fmt.Sprintf("invalid return %q for %s", value, ticker)}
		}
		views[strings.ToUpper(strings.TrimSpace(ticker))] = r
	}
	return views, nil
}

func (f *runFlags) prepare(cmd *cobra.Command) (optimization.PortfolioDataInput, optimization.OptimizationConfig, error) {
	var data optimization.PortfolioDataInput

	dto, err := f.configDTO(cmd)
	if err != nil {
		return data, optimization.OptimizationConfig{}, err
	}
	optCfg, err := dto.ToConfig(cfg.DefaultRiskFreeRate)
	if err != nil {
		return data, optCfg, err
	}

	data, err = f.loadData(cmd.Context())
	return data, optCfg, err
}

func (f *runFlags) loadData(ctx context.Context) (optimization.PortfolioDataInput, error) {
	switch {
	case f.dataFile != "" && len(f.tickers) > 0:
		return optimization.PortfolioDataInput{}, &optimization.ValidationError{Field: "data", Message: "use either --data or --tickers, not both"}
	case f.dataFile != "":
		raw, err := os.ReadFile(f.dataFile)
		if err != nil {
			return optimization.PortfolioDataInput{}, fmt.Errorf("failed to read data file: %w", err)
		}
		var dto handlers.DataDTO
		if err := json.Unmarshal(raw, &dto); err != nil {
			return optimization.PortfolioDataInput{}, &optimization.ValidationError{Field: "data", Message: "invalid JSON: " + err.Error()}
		}
		return dto.ToInput()
	case len(f.tickers) > 0:
		db, err := database.New(database.Config{Path: cfg.HistoryDBPath, Profile: database.ProfileReadOnly, Name: "history"})
		if err != nil {
			return optimization.PortfolioDataInput{}, err
		}
		defer db.Close()

		tickers := make([]string, len(f.tickers))
		for i, t := range f.tickers {
			tickers[i] = strings.ToUpper(strings.TrimSpace(t))
		}
		return universe.NewHistoryDB(db.Conn(), log).LoadPortfolioData(ctx, tickers, f.lookbackDays)
	default:
		return optimization.PortfolioDataInput{}, &optimization.ValidationError{Field: "data", Message: "either --data or --tickers is required"}
	}
}

func newOptimizer() *optimization.Optimizer {
	return optimization.NewOptimizer(optimization.SolverSettings{
		MaxIterations: cfg.SolverMaxIterations,
		Tolerance:     cfg.SolverTolerance,
	}, nil, log)
}

var optimizeFlags runFlags

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Compute optimal weights for one method",
	Example: `  allocator optimize -m max_sharpe --data prices.json
  allocator optimize -m black_litterman --tickers AAPL,MSFT,GOOG --view AAPL=0.12
  allocator optimize -m mean_variance --tickers SPY,TLT,GLD --target-return 0.06 --capital 100000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, optCfg, err := optimizeFlags.prepare(cmd)
		if err != nil {
			return err
		}
		out, err := newOptimizer().Optimize(cmd.Context(), data, optCfg)
		if err != nil {
			return err
		}
		return renderOptimization(cmd.OutOrStdout(), optimizeFlags.format, out, optimizeFlags.capital)
	},
}

var (
	frontierFlags   runFlags
	frontierPoints  int
	frontierWorkers int
)

var frontierCmd = &cobra.Command{
	Use:     "frontier",
	Short:   "Trace the efficient frontier",
	Example: `  allocator frontier -m mean_variance --tickers SPY,TLT,GLD,VNQ --points 25`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, optCfg, err := frontierFlags.prepare(cmd)
		if err != nil {
			return err
		}
		points := frontierPoints
		if points == 0 {
			points = cfg.FrontierPoints
		}
		workers := frontierWorkers
		if workers == 0 {
			workers = cfg.FrontierWorkers
		}
		out, err := newOptimizer().EfficientFrontier(cmd.Context(), data, optCfg, optimization.FrontierOptions{
			Points:  points,
			Workers: workers,
		})
		if err != nil {
			return err
		}
		return renderFrontier(cmd.OutOrStdout(), frontierFlags.format, out)
	},
}

func init() {
	optimizeFlags.register(optimizeCmd)
	optimizeCmd.Flags().Float64Var(&optimizeFlags.capital, "capital", 0, "show a notional allocation of this amount")

	frontierFlags.register(frontierCmd)
	frontierCmd.Flags().IntVar(&frontierPoints, "points", 0, "number of frontier points (default: $FRONTIER_POINTS)")
	frontierCmd.Flags().IntVar(&frontierWorkers, "workers", 0, "concurrent solves (default: $FRONTIER_WORKERS)")
}
