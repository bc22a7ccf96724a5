package alpha_vantage

import (
	"fmt"

	c "rc/service/api"
	sm "rc/service/models"
)

// TimeSeries is one of the adjusted functions, the only ones carrying an adjusted close
type TimeSeries uint8

const (
	TimeSeriesDailyAdjusted TimeSeries = iota
	TimeSeriesWeeklyAdjusted
	TimeSeriesMonthlyAdjusted
)

// TimeSeriesFor picks the function serving bars at a frequency given in periods per year
func TimeSeriesFor(frequency int) (TimeSeries, error) {
	switch frequency {
	case sm.Daily:
		return TimeSeriesDailyAdjusted, nil
	case sm.Weekly:
		return TimeSeriesWeeklyAdjusted, nil
	case sm.Monthly:
		return TimeSeriesMonthlyAdjusted, nil
	default:
		return 0, fmt.Errorf("%w: alpha vantage has no %d per year series", c.ErrUnsupportedFrequency, frequency)
	}
}

func (t TimeSeries) Function() string {
	switch t {
	case TimeSeriesDailyAdjusted:
		return "TIME_SERIES_DAILY_ADJUSTED"
	case TimeSeriesWeeklyAdjusted:
		return "TIME_SERIES_WEEKLY_ADJUSTED"
	case TimeSeriesMonthlyAdjusted:
		return "TIME_SERIES_MONTHLY_ADJUSTED"
	default:
		return ""
	}
}

// TimeSeriesKey is the top level json key holding the bars
func (t TimeSeries) TimeSeriesKey() string {
	switch t {
	case TimeSeriesDailyAdjusted:
		return "Time Series (Daily)"
	case TimeSeriesWeeklyAdjusted:
		return "Weekly Adjusted Time Series"
	case TimeSeriesMonthlyAdjusted:
		return "Monthly Adjusted Time Series"
	default:
		return ""
	}
}

// Frequency is the inverse of TimeSeriesFor
func (t TimeSeries) Frequency() int {
	switch t {
	case TimeSeriesWeeklyAdjusted:
		return sm.Weekly
	case TimeSeriesMonthlyAdjusted:
		return sm.Monthly
	default:
		return sm.Daily
	}
}

// only the daily function takes an output size, weekly and monthly always send full history
func (t TimeSeries) sized() bool {
	return t == TimeSeriesDailyAdjusted
}
