package universe

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxCloseRatio     = 10.0 // close > 10x the previous close is a spike
	minCloseRatio     = 0.1  // close < 0.1x the previous close is a crash
	contextWindowDays = 30
)

// Repair records a close that was replaced during import.
type Repair struct {
	Date     string
	Original float64
	Repaired float64
	Method   string // "linear", "forward_fill" or "backward_fill"
	Reason   string
}

// PriceValidator screens imported bars before they reach the history database.
// A single bad close would otherwise dominate the covariance estimate.
type PriceValidator struct {
	log zerolog.Logger
}

// NewPriceValidator creates a new price validator
func NewPriceValidator(log zerolog.Logger) *PriceValidator {
	return &PriceValidator{
		log: log.With().Str("component", "price_validator").Logger(),
	}
}

// Check returns the reason a bar is unusable, or "" when it is fine.
// history holds the previously accepted bars, oldest first.
func (v *PriceValidator) Check(price DailyPrice, history []DailyPrice) string {
	if math.IsNaN(price.Close) || math.IsInf(price.Close, 0) || price.Close <= 0 {
		return "non_positive_close"
	}
	if price.High < price.Low {
		return "high_below_low"
	}
	if price.Close > price.High || price.Close < price.Low {
		return "close_outside_range"
	}

	if len(history) == 0 {
		return ""
	}

	prev := history[len(history)-1].Close
	if price.Close > prev*maxCloseRatio {
		return "spike_detected"
	}
	if price.Close < prev*minCloseRatio {
		return "crash_detected"
	}

	window := history
	if len(window) > contextWindowDays {
		window = window[len(window)-contextWindowDays:]
	}
	var sum float64
	for _, p := range window {
		sum += p.Close
	}
	avg := sum / float64(len(window))
	if price.Close > avg*maxCloseRatio {
		return "price_too_high"
	}
	if price.Close < avg*minCloseRatio {
		return "price_too_low"
	}
	return ""
}

// Clean sorts bars by date and replaces unusable closes from their nearest
// accepted neighbours: linearly in calendar time when both exist, otherwise by
// carrying the single neighbour. It fails when no bar is usable.
func (v *PriceValidator) Clean(prices []DailyPrice) ([]DailyPrice, []Repair, error) {
	if len(prices) == 0 {
		return nil, nil, nil
	}

	out := append([]DailyPrice(nil), prices...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	days := make([]float64, len(out))
	for i, p := range out {
		t, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse date %q: %w", p.Date, err)
		}
		days[i] = float64(t.Unix()) / 86400
	}

	reasons := make([]string, len(out))
	accepted := make([]DailyPrice, 0, len(out))
	for i, p := range out {
		if reason := v.Check(p, accepted); reason != "" {
			reasons[i] = reason
			continue
		}
		accepted = append(accepted, p)
	}
	if len(accepted) == 0 {
		return nil, nil, fmt.Errorf("no usable prices among %d rows", len(out))
	}

	var repairs []Repair
	for i := range out {
		if reasons[i] == "" {
			continue
		}
		prev, next := -1, -1
		for j := i - 1; j >= 0; j-- {
			if reasons[j] == "" {
				prev = j
				break
			}
		}
		for j := i + 1; j < len(out); j++ {
			if reasons[j] == "" {
				next = j
				break
			}
		}

		var repaired float64
		var method string
		switch {
		case prev >= 0 && next >= 0:
			frac := (days[i] - days[prev]) / (days[next] - days[prev])
			repaired = out[prev].Close + (out[next].Close-out[prev].Close)*frac
			method = "linear"
		case prev >= 0:
			repaired, method = out[prev].Close, "forward_fill"
		default:
			repaired, method = out[next].Close, "backward_fill"
		}

		repairs = append(repairs, Repair{
			Date:     out[i].Date,
			Original: out[i].Close,
			Repaired: repaired,
			Method:   method,
			Reason:   reasons[i],
		})
		v.log.Warn().
			Str("date", out[i].Date).
			Float64("original_close", out[i].Close).
			Float64("repaired_close", repaired).
			Str("method", method).
			Str("reason", reasons[i]).
			Msg("Repaired abnormal price")

		out[i].Open, out[i].High, out[i].Low, out[i].Close = repaired, repaired, repaired, repaired
	}

	return out, repairs, nil
}
