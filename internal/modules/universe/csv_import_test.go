package universe

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPriceCSV(t *testing.T) {
	input := `Symbol,Date,Open,High,Low,Close,Volume
aaa,2024-01-02,10,11,9,10.5,1200
AAA,2024-01-03,,,,10.7,
BBB,2024-01-02,20,21,19,20.5,300
`
	got, err := ReadPriceCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got["AAA"], 2)

	first := got["AAA"][0]
	assert.Equal(t, "2024-01-02", first.Date)
	assert.Equal(t, 10.0, first.Open)
	assert.Equal(t, 11.0, first.High)
	assert.Equal(t, 10.5, first.Close)
	require.NotNil(t, first.Volume)
	assert.Equal(t, int64(1200), *first.Volume)

	second := got["AAA"][1]
	assert.Equal(t, 10.7, second.Open, "missing open defaults to close")
	assert.Equal(t, 10.7, second.Low)
	assert.Nil(t, second.Volume)
}

func TestReadPriceCSV_CloseOnly(t *testing.T) {
	got, err := ReadPriceCSV(strings.NewReader("date,symbol,close\n2024-01-02,AAA,5\n"))
	require.NoError(t, err)
	assert.Equal(t, 5.0, got["AAA"][0].High)
}

func TestReadPriceCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing close column", "symbol,date\nAAA,2024-01-02\n"},
		{"no rows", "symbol,date,close\n"},
		{"bad date", "symbol,date,close\nAAA,02/01/2024,5\n"},
		{"bad close", "symbol,date,close\nAAA,2024-01-02,abc\n"},
		{"empty symbol", "symbol,date,close\n,2024-01-02,5\n"},
		{"bad volume", "symbol,date,close,volume\nAAA,2024-01-02,5,1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPriceCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestHistoryDB_Import(t *testing.T) {
	h := newTestHistoryDB(t)
	ctx := context.Background()

	var b strings.Builder
	b.WriteString("symbol,date,close\n")
	b.WriteString("BBB,2024-01-01,50\nBBB,2024-01-02,51\nBBB,2024-01-03,52\n")
	b.WriteString("AAA,2024-01-01,10\nAAA,2024-01-02,900\nAAA,2024-01-03,12\n")

	results, err := h.Import(ctx, strings.NewReader(b.String()), NewPriceValidator(zerolog.Nop()))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ImportResult{Symbol: "AAA", Rows: 3, Repaired: 1}, results[0])
	assert.Equal(t, ImportResult{Symbol: "BBB", Rows: 3, Repaired: 0}, results[1])

	prices, err := h.GetDailyPrices(ctx, "AAA", 10)
	require.NoError(t, err)
	require.Len(t, prices, 3)
	assert.InDelta(t, 11.0, prices[1].Close, 1e-9)

	data, err := h.LoadPortfolioData(ctx, []string{"AAA", "BBB"}, 0)
	require.NoError(t, err)
	assert.Len(t, data.Dates, 3)
}
