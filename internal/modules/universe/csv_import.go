package universe

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ImportResult summarizes one symbol written by Import.
type ImportResult struct {
	Symbol   string
	Rows     int
	Repaired int
}

// ReadPriceCSV parses long-format price rows grouped by upper-cased symbol.
// The header must name symbol, date and close columns; open, high, low and
// volume are optional and default to the close (volume to empty).
func ReadPriceCSV(r io.Reader) (map[string][]DailyPrice, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"symbol", "date", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV header missing %q column", required)
		}
	}

	out := make(map[string][]DailyPrice)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		symbol := strings.ToUpper(strings.TrimSpace(record[cols["symbol"]]))
		if symbol == "" {
			return nil, fmt.Errorf("line %d: empty symbol", line)
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(record[cols["date"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date: %w", line, err)
		}
		closePrice, err := parseFloatField(record, cols["close"])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid close: %w", line, err)
		}

		p := DailyPrice{Date: date.Format("2006-01-02"), Open: closePrice, High: closePrice, Low: closePrice, Close: closePrice}
		for name, dst := range map[string]*float64{"open": &p.Open, "high": &p.High, "low": &p.Low} {
			idx, ok := cols[name]
			if !ok || strings.TrimSpace(record[idx]) == "" {
				continue
			}
			if *dst, err = parseFloatField(record, idx); err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, name, err)
			}
		}
		if idx, ok := cols["volume"]; ok && strings.TrimSpace(record[idx]) != "" {
			vol, err := strconv.ParseInt(strings.TrimSpace(record[idx]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid volume: %w", line, err)
			}
			p.Volume = &vol
		}

		out[symbol] = append(out[symbol], p)
	}

	if len(out) == 0 {
		return nil, errors.New("CSV contains no price rows")
	}
	return out, nil
}

func parseFloatField(record []string, idx int) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
}

// Import reads a price CSV, repairs abnormal closes and writes every symbol to
// the history database. Results are sorted by symbol.
func (h *HistoryDB) Import(ctx context.Context, r io.Reader, validator *PriceValidator) ([]ImportResult, error) {
	bySymbol, err := ReadPriceCSV(r)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	results := make([]ImportResult, 0, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		cleaned, repairs, err := validator.Clean(bySymbol[symbol])
		if err != nil {
			return results, fmt.Errorf("%s: %w", symbol, err)
		}
		if err := h.SyncDailyPrices(ctx, symbol, cleaned); err != nil {
			return results, fmt.Errorf("%s: %w", symbol, err)
		}
		results = append(results, ImportResult{Symbol: symbol, Rows: len(cleaned), Repaired: len(repairs)})
	}
	return results, nil
}
