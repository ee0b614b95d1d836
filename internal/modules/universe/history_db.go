// Package universe stores the daily price history optimizations run against.
package universe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// DailyPrice represents a daily OHLCV price point
type DailyPrice struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume *int64  `json:"volume,omitempty"`
}

// GetDailyPrices fetches the most recent daily prices for a symbol, newest first.
func (h *HistoryDB) GetDailyPrices(ctx context.Context, symbol string, limit int) ([]DailyPrice, error) {
	query := `
		SELECT date, open, high, low, close, volume
		FROM daily_prices
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`

	rows, err := h.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var dateUnix int64
		var volume sql.NullInt64

		if err := rows.Scan(&dateUnix, &p.Open, &p.High, &p.Low, &p.Close, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC().Format("2006-01-02")
		if volume.Valid {
			p.Volume = &volume.Int64
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// SyncDailyPrices inserts or replaces daily prices for a symbol in one transaction.
func (h *HistoryDB) SyncDailyPrices(ctx context.Context, symbol string, prices []DailyPrice) error {
	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO daily_prices
			(symbol, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, price := range prices {
			date, err := time.Parse("2006-01-02", price.Date)
			if err != nil {
				return fmt.Errorf("failed to parse date %s: %w", price.Date, err)
			}

			volume := sql.NullInt64{}
			if price.Volume != nil {
				volume = sql.NullInt64{Int64: *price.Volume, Valid: true}
			}

			if _, err := stmt.ExecContext(ctx, symbol, date.Unix(),
				price.Open, price.High, price.Low, price.Close, volume); err != nil {
				return fmt.Errorf("failed to insert daily price for %s: %w", price.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.log.Info().
		Str("symbol", symbol).
		Int("count", len(prices)).
		Msg("Synced daily prices")
	return nil
}

// LoadPortfolioData builds an optimizer input from the closes shared by every
// ticker. Only dates present for all tickers are kept, ascending, and the most
// recent lookbackDays+1 of them are returned (lookbackDays returns). A
// non-positive lookback keeps the full shared history. The result is not
// validated; the optimizer reports any shortfall.
func (h *HistoryDB) LoadPortfolioData(ctx context.Context, tickers []string, lookbackDays int) (optimization.PortfolioDataInput, error) {
	data := optimization.PortfolioDataInput{
		Tickers: append([]string(nil), tickers...),
		Prices:  make(map[string][]float64, len(tickers)),
	}
	if len(tickers) == 0 {
		return data, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tickers)), ",")
	args := make([]interface{}, 0, len(tickers)+2)
	for _, ticker := range tickers {
		args = append(args, ticker)
	}
	args = append(args, len(tickers))

	limitClause := ""
	if lookbackDays > 0 {
		limitClause = "LIMIT ?"
		args = append(args, lookbackDays+1)
	}

	// Dates every ticker has, newest first, capped to the lookback.
	query := fmt.Sprintf(`
		SELECT date FROM daily_prices
		WHERE symbol IN (%s)
		GROUP BY date
		HAVING COUNT(DISTINCT symbol) = ?
		ORDER BY date DESC
		%s
	`, placeholders, limitClause)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return data, fmt.Errorf("failed to query shared dates: %w", err)
	}
	var unixDates []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return data, fmt.Errorf("failed to scan date: %w", err)
		}
		unixDates = append(unixDates, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return data, fmt.Errorf("error iterating dates: %w", err)
	}
	if len(unixDates) == 0 {
		h.log.Warn().Strs("tickers", tickers).Msg("No shared price history")
		return data, nil
	}

	// Reverse to ascending order.
	for i, j := 0, len(unixDates)-1; i < j; i, j = i+1, j-1 {
		unixDates[i], unixDates[j] = unixDates[j], unixDates[i]
	}
	index := make(map[int64]int, len(unixDates))
	data.Dates = make([]time.Time, len(unixDates))
	for i, d := range unixDates {
		index[d] = i
		data.Dates[i] = time.Unix(d, 0).UTC()
	}

	from, to := unixDates[0], unixDates[len(unixDates)-1]
	for _, ticker := range tickers {
		series := make([]float64, len(unixDates))
		rows, err := h.db.QueryContext(ctx, `
			SELECT date, close FROM daily_prices
			WHERE symbol = ? AND date BETWEEN ? AND ?
		`, ticker, from, to)
		if err != nil {
			return data, fmt.Errorf("failed to query closes for %s: %w", ticker, err)
		}
		for rows.Next() {
			var d int64
			var c float64
			if err := rows.Scan(&d, &c); err != nil {
				rows.Close()
				return data, fmt.Errorf("failed to scan close for %s: %w", ticker, err)
			}
			if i, ok := index[d]; ok {
				series[i] = c
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return data, fmt.Errorf("error iterating closes for %s: %w", ticker, err)
		}
		data.Prices[ticker] = series
	}

	h.log.Debug().
		Int("tickers", len(tickers)).
		Int("dates", len(data.Dates)).
		Msg("Loaded portfolio data")
	return data, nil
}
