package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/universe"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitValidation, exitCode(&optimization.ValidationError{Field: "method"}))
	assert.Equal(t, exitConvergence, exitCode(&optimization.ConvergenceFailure{Status: "infeasible"}))
	assert.Equal(t, exitInvariant, exitCode(&optimization.BoundsViolation{Ticker: "AAA"}))
	assert.Equal(t, exitInvariant, exitCode(&optimization.InvariantViolation{Name: "diversification_ratio"}))
	assert.Equal(t, exitFailure, exitCode(errors.New("disk full")))
}

func TestParseViews(t *testing.T) {
	views, err := parseViews(map[string]string{"aapl": "0.12", " MSFT ": "-0.05"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAPL": 0.12, "MSFT": -0.05}, views)

	views, err = parseViews(nil)
	require.NoError(t, err)
	assert.Nil(t, views)

	_, err = parseViews(map[string]string{"AAPL": "twelve"})
	assert.True(t, errors.Is(err, optimization.ErrValidation))
}

func TestConfigDTO_OnlyChangedFlags(t *testing.T) {
	var f runFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"-m", "black_litterman", "--max-weight", "0.4", "--view", "AAA=0.1"}))

	dto, err := f.configDTO(cmd)
	require.NoError(t, err)
	assert.Equal(t, "black_litterman", dto.Method)
	assert.Nil(t, dto.RiskFreeRate)
	assert.Nil(t, dto.TargetReturn)
	require.NotNil(t, dto.PositionLimits)
	assert.Equal(t, 0.0, dto.PositionLimits.Min)
	assert.Equal(t, 0.4, dto.PositionLimits.Max)
	assert.Equal(t, map[string]float64{"AAA": 0.1}, dto.Views)

	optCfg, err := dto.ToConfig(0.03)
	require.NoError(t, err)
	assert.Equal(t, 0.03, optCfg.RiskFreeRate())
}

func TestLoadData_RequiresSource(t *testing.T) {
	var f runFlags
	_, err := f.loadData(t.Context())
	assert.True(t, errors.Is(err, optimization.ErrValidation))

	f = runFlags{dataFile: "prices.json", tickers: []string{"AAA"}}
	_, err = f.loadData(t.Context())
	assert.True(t, errors.Is(err, optimization.ErrValidation))
}

func sampleOutput() *optimization.OptimizationOutput {
	return &optimization.OptimizationOutput{
		RunID:                "run",
		Tickers:              []string{"AAA", "BBB"},
		Method:               optimization.MethodMaxSharpe,
		OptimalWeights:       map[string]float64{"AAA": 0.25, "BBB": 0.75},
		ExpectedReturns:      map[string]float64{"AAA": 0.05, "BBB": 0.09},
		ExpectedReturn:       0.08,
		ExpectedVolatility:   0.12,
		SharpeRatio:          0.5,
		DiversificationRatio: 1.1,
		Iterations:           17,
	}
}

func TestRenderOptimization_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderOptimization(&buf, "table", sampleOutput(), 10000))

	out := buf.String()
	assert.Contains(t, out, "BBB")
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, "7,500")
	assert.Contains(t, out, "max_sharpe")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("BBB")), bytes.Index(buf.Bytes(), []byte("AAA")),
		"rows are sorted by weight")
}

func TestRenderOptimization_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderOptimization(&buf, "json", sampleOutput(), 200))

	var payload struct {
		Result     optimization.OptimizationOutput `json:"result"`
		Allocation map[string]float64              `json:"allocation"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, 0.75, payload.Result.OptimalWeights["BBB"])
	assert.Equal(t, 150.0, payload.Allocation["BBB"])
}

func TestRenderFrontier(t *testing.T) {
	out := &optimization.EfficientFrontierOutput{
		Tickers:               []string{"AAA", "BBB"},
		TargetReturns:         []float64{0.05, 0.07},
		Returns:               []float64{0.05, 0.07},
		Volatilities:          []float64{0.10, 0.12},
		SharpeRatios:          []float64{0.3, 0.4167},
		Weights:               []map[string]float64{{"AAA": 1}, {"BBB": 1}},
		OptimalPortfolioIndex: 1,
		RequestedPoints:       10,
		SkippedPoints:         8,
	}

	var buf bytes.Buffer
	require.NoError(t, renderFrontier(&buf, "table", out))
	assert.Contains(t, buf.String(), "2 *")
	assert.Contains(t, buf.String(), "2 of 10 points solved")
}

func TestRenderImport(t *testing.T) {
	var buf bytes.Buffer
	renderImport(&buf, "/tmp/history.db", []universe.ImportResult{
		{Symbol: "AAA", Rows: 1200, Repaired: 2},
		{Symbol: "BBB", Rows: 300},
	})
	assert.Contains(t, buf.String(), "1,200")
	assert.Contains(t, buf.String(), "1,500 rows into /tmp/history.db")
}
