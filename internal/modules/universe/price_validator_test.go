package universe

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(date string, close float64) DailyPrice {
	return DailyPrice{Date: date, Open: close, High: close, Low: close, Close: close}
}

func TestPriceValidator_Check(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())
	history := []DailyPrice{bar("2024-01-01", 100), bar("2024-01-02", 101)}

	tests := []struct {
		name    string
		price   DailyPrice
		history []DailyPrice
		want    string
	}{
		{"valid without history", bar("2024-01-03", 100), nil, ""},
		{"valid with history", bar("2024-01-03", 103), history, ""},
		{"zero close", bar("2024-01-03", 0), nil, "non_positive_close"},
		{"nan close", bar("2024-01-03", math.NaN()), nil, "non_positive_close"},
		{"high below low", DailyPrice{Date: "2024-01-03", Open: 100, High: 99, Low: 101, Close: 100}, nil, "high_below_low"},
		{"close above high", DailyPrice{Date: "2024-01-03", Open: 100, High: 101, Low: 99, Close: 102}, nil, "close_outside_range"},
		{"spike", bar("2024-01-03", 1500), history, "spike_detected"},
		{"crash", bar("2024-01-03", 5), history, "crash_detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Check(tt.price, tt.history))
		})
	}
}

func TestPriceValidator_Check_WindowAverage(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())

	// A slow climb passes day-over-day checks but not the window average.
	history := []DailyPrice{bar("2024-01-01", 10), bar("2024-01-02", 10), bar("2024-01-03", 60)}
	assert.Equal(t, "price_too_high", v.Check(bar("2024-01-04", 300), history))
}

func TestPriceValidator_Clean(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())

	prices := []DailyPrice{
		bar("2024-01-03", 5000), // spike between 100 and 104
		bar("2024-01-01", 100),
		bar("2024-01-05", 104),
		bar("2024-01-06", -1),
	}

	out, repairs, err := v.Clean(prices)
	require.NoError(t, err)
	require.Len(t, out, 4)
	require.Len(t, repairs, 2)

	assert.Equal(t, "2024-01-01", out[0].Date)
	assert.Equal(t, "2024-01-03", out[1].Date)
	assert.InDelta(t, 102.0, out[1].Close, 1e-9)
	assert.Equal(t, "linear", repairs[0].Method)
	assert.Equal(t, "spike_detected", repairs[0].Reason)
	assert.Equal(t, 5000.0, repairs[0].Original)

	assert.InDelta(t, 104.0, out[3].Close, 1e-9)
	assert.Equal(t, "forward_fill", repairs[1].Method)
	assert.Equal(t, "non_positive_close", repairs[1].Reason)

	// Input is left untouched.
	assert.Equal(t, 5000.0, prices[0].Close)
}

func TestPriceValidator_Clean_BackwardFill(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())

	out, repairs, err := v.Clean([]DailyPrice{bar("2024-01-01", 0), bar("2024-01-02", 50)})
	require.NoError(t, err)
	require.Len(t, repairs, 1)
	assert.Equal(t, "backward_fill", repairs[0].Method)
	assert.Equal(t, 50.0, out[0].Close)
}

func TestPriceValidator_Clean_Errors(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())

	_, _, err := v.Clean([]DailyPrice{bar("2024-01-01", 0), bar("2024-01-02", -3)})
	assert.Error(t, err)

	_, _, err = v.Clean([]DailyPrice{bar("01/02/2024", 10)})
	assert.Error(t, err)

	out, repairs, err := v.Clean(nil)
	assert.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, repairs)
}
