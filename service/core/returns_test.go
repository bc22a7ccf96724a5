package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "rc/data/models"
)

const tolerance = 1e-12

func assertValues(t *testing.T, expected []float64, actual *m.Series) {
	t.Helper()
	require.Len(t, actual.Values, len(expected), actual.Name)
	for i, e := range expected {
		if math.IsNaN(e) {
			assert.False(t, actual.Values[i].Valid, "%s[%d] should have no value", actual.Name, i)
			continue
		}
		require.True(t, actual.Values[i].Valid, "%s[%d] should have a value", actual.Name, i)
		assert.InDelta(t, e, actual.Values[i].Float64, tolerance, "%s[%d]", actual.Name, i)
	}
}

func TestCalculateReturnsSeries(t *testing.T) {
	prices := mustSeries(t, "SPY", 100, 110, 99)

	res, err := CalculateReturns(prices, true)
	require.NoError(t, err)
	dropped, ok := res.(*m.Series)
	require.True(t, ok, "a series gives back a series, got %T", res)

	assert.Equal(t, "SPY", dropped.Name)
	assert.Equal(t, prices.Dates[1:], dropped.Dates)
	assertValues(t, []float64{0.10, -0.10}, dropped)

	res, err = CalculateReturns(prices, false)
	require.NoError(t, err)
	kept := res.(*m.Series)

	assert.Equal(t, prices.Dates, kept.Dates)
	assertValues(t, []float64{math.NaN(), 0.10, -0.10}, kept)
}

func TestCalculateReturnsTable(t *testing.T) {
	prices := mustTable(t, map[string][]float64{"A": {10, 11}, "B": {20, 19}}, "A", "B")

	res, err := CalculateReturns(prices, true)
	require.NoError(t, err)
	returns, ok := res.(*m.Table)
	require.True(t, ok, "a table gives back a table, got %T", res)

	assert.Equal(t, []string{"A", "B"}, returns.ColumnNames())
	assert.Equal(t, prices.Dates[1:], returns.Dates)
	assertValues(t, []float64{0.10}, returns.Column("A"))
	assertValues(t, []float64{-0.05}, returns.Column("B"))
}

func TestCalculateReturnsUnsupportedType(t *testing.T) {
	inputs := []any{
		42,
		"SPY",
		[]float64{1, 2, 3},
		m.Series{},
		m.Table{},
		(*m.Series)(nil),
		(*m.Table)(nil),
		nil,
	}

	for _, input := range inputs {
		res, err := CalculateReturns(input, true)
		assert.ErrorIs(t, err, ErrUnsupportedType, "%T", input)
		assert.Nil(t, res)
	}
}

func TestSeriesReturnsLengths(t *testing.T) {
	prices := generateMockPriceTable(t, 50).Column("AAA")

	dropped := SeriesReturns(prices, true)
	kept := SeriesReturns(prices, false)

	require.Equal(t, prices.Len()-1, dropped.Len())
	require.Equal(t, prices.Len(), kept.Len())
	assert.False(t, kept.Values[0].Valid)

	for i := range dropped.Len() {
		expected := prices.Values[i+1].Float64/prices.Values[i].Float64 - 1
		assert.InDelta(t, expected, dropped.Values[i].Float64, tolerance)
		assert.Equal(t, dropped.Values[i], kept.Values[i+1])
		assert.Equal(t, dropped.Dates[i], kept.Dates[i+1])
	}
}

func TestTableReturnsMatchesEachColumn(t *testing.T) {
	prices := generateMockPriceTable(t, 30)

	for _, dropNA := range []bool{true, false} {
		returns := TableReturns(prices, dropNA)
		require.Equal(t, mockSymbols, returns.ColumnNames())

		for _, c := range prices.Columns {
			expected := SeriesReturns(c, dropNA)
			actual := returns.Column(c.Name)
			assert.Equal(t, expected.Dates, actual.Dates, c.Name)
			assert.Equal(t, expected.Values, actual.Values, c.Name)
		}
	}
}

func TestReturnsDoNotMutateInput(t *testing.T) {
	prices := mustTable(t, map[string][]float64{"A": {10, math.NaN(), 12}, "B": {5, 6, 7}}, "A", "B")
	before := prices.Clone()

	TableReturns(prices, true)
	TableReturns(prices, false)
	SeriesReturns(prices.Column("A"), true)

	assert.Equal(t, before, prices)

	// the result owns its memory
	res := TableReturns(prices, false)
	res.Columns[1].Values[2] = m.Float(99)
	res.Dates[0] = day(100)
	assert.Equal(t, before, prices)
}

func TestReturnsOfReturnsAreFresh(t *testing.T) {
	first := SeriesReturns(mustSeries(t, "X", 100, 110, 121, 133.1), true)
	second := SeriesReturns(first, true)

	// 0.1 every period, so the relative change of the returns is zero
	assert.Equal(t, first.Len()-1, second.Len())
	assertValues(t, []float64{0, 0}, second)
}

func TestReturnsUndefinedInputs(t *testing.T) {
	returns := SeriesReturns(mustSeries(t, "X", 10, math.NaN(), 12, 0, 5, 6), false)
	assertValues(t, []float64{math.NaN(), math.NaN(), math.NaN(), -1, math.NaN(), 0.2}, returns)

	dropped := SeriesReturns(mustSeries(t, "X", 10, math.NaN(), 12, 0, 5, 6), true)
	assert.Equal(t, []float64{-1, 0.2}, roundAll(dropped.ValidFloats()))
	assert.Equal(t, []time.Time{day(3), day(5)}, dropped.Dates)
}

func TestTableReturnsKeepsDatesWithAnyReturn(t *testing.T) {
	prices := mustTable(t, map[string][]float64{
		"A": {10, 11, 12, math.NaN()},
		"B": {math.NaN(), 20, 21, 22},
	}, "A", "B")

	returns := TableReturns(prices, true)
	assert.Equal(t, prices.Dates[1:], returns.Dates)
	assertValues(t, []float64{0.1, 1.0 / 11, math.NaN()}, returns.Column("A"))
	assertValues(t, []float64{math.NaN(), 0.05, 1.0 / 21}, returns.Column("B"))
}

func TestReturnsShortInputs(t *testing.T) {
	one := mustSeries(t, "X", 100)
	assert.Equal(t, 0, SeriesReturns(one, true).Len())
	assert.Equal(t, 1, SeriesReturns(one, false).Len())

	empty, err := m.NewTable(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, TableReturns(empty, true).Len())
}

func roundAll(values []float64) []float64 {
	res := make([]float64, len(values))
	for i, v := range values {
		res[i] = math.Round(v*1e9) / 1e9
	}
	return res
}
