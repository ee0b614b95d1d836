package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/universe"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numberStyle  = cellStyle.Align(lipgloss.Right)
	labelStyle   = lipgloss.NewStyle().Faint(true)
	optimalStyle = numberStyle.Bold(true)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		})
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderOptimization(w io.Writer, format string, out *optimization.OptimizationOutput, capital float64) error {
	if format == "json" {
		payload := map[string]interface{}{"result": out}
		if capital > 0 {
			payload["allocation"] = out.Allocation(capital)
		}
		return writeJSON(w, payload)
	}

	headers := []string{"Ticker", "Weight", "Exp. Return"}
	if capital > 0 {
		headers = append(headers, "Allocation")
	}
	t := newTable(headers...)

	tickers := append([]string(nil), out.Tickers...)
	sort.SliceStable(tickers, func(i, j int) bool {
		return out.OptimalWeights[tickers[i]] > out.OptimalWeights[tickers[j]]
	})
	alloc := out.Allocation(capital)
	for _, ticker := range tickers {
		row := []string{ticker, pct(out.OptimalWeights[ticker]), pct(out.ExpectedReturns[ticker])}
		if capital > 0 {
			row = append(row, humanize.CommafWithDigits(alloc[ticker], 2))
		}
		t.Row(row...)
	}

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("method:         "), out.Method)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("expected return:"), pct(out.ExpectedReturn))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("volatility:     "), pct(out.ExpectedVolatility))
	fmt.Fprintf(w, "%s %.4f\n", labelStyle.Render("sharpe ratio:   "), out.SharpeRatio)
	fmt.Fprintf(w, "%s %.4f\n", labelStyle.Render("diversification:"), out.DiversificationRatio)
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("iterations:     "), out.Iterations)
	return nil
}

func renderFrontier(w io.Writer, format string, out *optimization.EfficientFrontierOutput) error {
	if format == "json" {
		return writeJSON(w, out)
	}

	t := newTable("#", "Target", "Return", "Volatility", "Sharpe").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == out.OptimalPortfolioIndex:
				return optimalStyle
			default:
				return numberStyle
			}
		})
	for i := range out.Returns {
		marker := fmt.Sprint(i + 1)
		if i == out.OptimalPortfolioIndex {
			marker += " *"
		}
		t.Row(marker, pct(out.TargetReturns[i]), pct(out.Returns[i]), pct(out.Volatilities[i]),
			fmt.Sprintf("%.4f", out.SharpeRatios[i]))
	}

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%s %d of %d points solved (* max Sharpe)\n", labelStyle.Render("frontier:"),
		len(out.Returns), out.RequestedPoints)
	return nil
}

func renderImport(w io.Writer, path string, results []universe.ImportResult) {
	t := newTable("Symbol", "Rows", "Repaired")
	total := 0
	for _, r := range results {
		t.Row(r.Symbol, humanize.Comma(int64(r.Rows)), fmt.Sprint(r.Repaired))
		total += r.Rows
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%s %s rows into %s\n", labelStyle.Render("imported:"), humanize.Comma(int64(total)), path)
}
