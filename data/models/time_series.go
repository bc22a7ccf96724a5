package models

import (
	"slices"
	"time"

	"github.com/guregu/null/v6"
)

// column names of an actions table
const (
	ActionDividend = "dividend"
	ActionSplit    = "split"
)

type TimeSeriesResult struct {
	Metadata   *TimeSeriesMetadata
	TimeSeries []*TimeSeriesData
}

type TimeSeriesMetadata struct {
	Symbol        string
	LastRefreshed time.Time
	TimeZone      string
}

type TimeSeriesOHLCV struct {
	Open   null.Float
	High   null.Float
	Low    null.Float
	Close  null.Float
	Volume null.Float
}

// TimeSeriesData is one bar. DividendAmount is 0 and SplitCoefficient is 1 on a bar without an action,
// both have no value when the provider did not report actions at all.
type TimeSeriesData struct {
	Timestamp time.Time
	TimeSeriesOHLCV
	AdjustedClose    null.Float
	DividendAmount   null.Float
	SplitCoefficient null.Float
}

func (d *TimeSeriesData) hasDividend() bool {
	return d.DividendAmount.Valid && d.DividendAmount.Float64 > 0
}

func (d *TimeSeriesData) hasSplit() bool {
	return d.SplitCoefficient.Valid && d.SplitCoefficient.Float64 > 0 && d.SplitCoefficient.Float64 != 1
}

// AdjustedCloseSeries builds the price series for dates in [start, end). A zero start or end leaves that side open.
func (r *TimeSeriesResult) AdjustedCloseSeries(start, end time.Time) (*Series, error) {
	data := r.between(start, end)

	dates := make([]time.Time, len(data))
	values := make([]null.Float, len(data))
	for i, d := range data {
		dates[i] = d.Timestamp
		values[i] = d.AdjustedClose
	}

	return NewSeries(r.symbol(), dates, values)
}

// ActionsTable lists the bars in [start, end) carrying a dividend or a split.
// The dividend column holds the cash amount, the split column the share ratio (4 for a 4:1 split).
func (r *TimeSeriesResult) ActionsTable(start, end time.Time) (*Table, error) {
	var dates []time.Time
	var dividends, splits []null.Float
	for _, d := range r.between(start, end) {
		if !d.hasDividend() && !d.hasSplit() {
			continue
		}
		dates = append(dates, d.Timestamp)

		var dividend, split null.Float
		if d.hasDividend() {
			dividend = d.DividendAmount
		}
		if d.hasSplit() {
			split = d.SplitCoefficient
		}
		dividends = append(dividends, dividend)
		splits = append(splits, split)
	}

	res, err := NewTable(dates)
	if err != nil {
		return nil, err
	}
	if err := res.AddColumn(ActionDividend, dividends); err != nil {
		return nil, err
	}
	if err := res.AddColumn(ActionSplit, splits); err != nil {
		return nil, err
	}
	return res, nil
}

// between returns the bars in [start, end) sorted by date
func (r *TimeSeriesResult) between(start, end time.Time) []*TimeSeriesData {
	data := make([]*TimeSeriesData, 0, len(r.TimeSeries))
	for _, d := range r.TimeSeries {
		if !start.IsZero() && d.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !d.Timestamp.Before(end) {
			continue
		}
		data = append(data, d)
	}

	// provider payloads are keyed objects, so they arrive in no particular order
	slices.SortFunc(data, func(a, b *TimeSeriesData) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return data
}

func (r *TimeSeriesResult) symbol() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata.Symbol
}
