package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/guregu/null/v6"
	"go.uber.org/zap"

	ex "rc/data/extensions"
	m "rc/data/models"
	c "rc/service/api"
	sm "rc/service/models"
)

const (
	HostDefault = "query1.finance.yahoo.com"
)

const (
	defaultTimeout = time.Second * 30
	chartPath      = "/v8/finance/chart/"
)

var ErrNoData = errors.New("yahoo chart returned no data")

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol               string `json:"symbol"`
		ExchangeTimezoneName string `json:"exchangeTimezoneName"`
		GmtOffset            int    `json:"gmtoffset"`
		RegularMarketTime    int64  `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64     `json:"timestamp"`
	Events     chartEvents `json:"events"`
	Indicators struct {
		Quote []struct {
			Open   []null.Float `json:"open"`
			High   []null.Float `json:"high"`
			Low    []null.Float `json:"low"`
			Close  []null.Float `json:"close"`
			Volume []null.Float `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []null.Float `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// chartEvents are keyed by the unix time of the bar they belong to
type chartEvents struct {
	Dividends map[string]struct {
		Amount float64 `json:"amount"`
		Date   int64   `json:"date"`
	} `json:"dividends"`
	Splits map[string]struct {
		Date        int64   `json:"date"`
		Numerator   float64 `json:"numerator"`
		Denominator float64 `json:"denominator"`
	} `json:"splits"`
}

// Client reads bars from the public chart endpoint, no api key needed
type Client struct {
	*c.Client
	Logger *zap.Logger
}

func GetClient(timeout time.Duration, logger *zap.Logger) Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewClient(c.ClientFactory(HostDefault, "", timeout), logger)
}

func NewClient(client *c.Client, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Client{
		Client: client,
		Logger: logger.Named("yahoo"),
	}
}

// FetchAdjustedClose returns the adjusted close for dates in [start, end), keyed on the exchange's calendar date in UTC.
// Weekly and monthly bars are dated by the first session of the period.
func (yc Client) FetchAdjustedClose(ctx context.Context, ticker string, frequency int, start, end time.Time) (*m.Series, error) {
	res, err := yc.Chart(ctx, ticker, frequency, start, end)
	if err != nil {
		return nil, err
	}

	series, err := res.AdjustedCloseSeries(ex.TruncateDate(start), truncateEnd(end))
	if err != nil {
		return nil, fmt.Errorf("error building adjusted close series for %s: %w", ticker, err)
	}
	series.Name = ticker

	yc.Logger.Debug("fetched adjusted close",
		zap.String("symbol", ticker),
		zap.Int("frequency", frequency),
		zap.Int("received", len(res.TimeSeries)),
		zap.Int("kept", series.Len()))

	return series, nil
}

// FetchActions returns the dividends and splits in [start, end) reported alongside the daily chart
func (yc Client) FetchActions(ctx context.Context, ticker string, start, end time.Time) (*m.Table, error) {
	res, err := yc.Chart(ctx, ticker, sm.Daily, start, end)
	if err != nil {
		return nil, err
	}

	actions, err := res.ActionsTable(ex.TruncateDate(start), truncateEnd(end))
	if err != nil {
		return nil, fmt.Errorf("error building actions for %s: %w", ticker, err)
	}

	yc.Logger.Debug("fetched actions", zap.String("symbol", ticker), zap.Int("actions", actions.Len()))

	return actions, nil
}

// Chart returns one bar per exchange date, later bars win when the provider repeats a date.
// Frequency is in periods per year, daily, weekly and monthly are served.
func (yc Client) Chart(ctx context.Context, ticker string, frequency int, start, end time.Time) (*m.TimeSeriesResult, error) {
	interval, err := chartInterval(frequency)
	if err != nil {
		return nil, err
	}

	response, err := yc.Client.Connection.Request(ctx, buildRequestPath(ticker, interval, start, end))
	if err != nil {
		return nil, fmt.Errorf("error requesting chart for %s: %w", ticker, err)
	}

	body, err := c.ReadBody(response)
	if err != nil {
		return nil, fmt.Errorf("error requesting chart for %s: %w", ticker, err)
	}

	return parseChart(body)
}

func chartInterval(frequency int) (string, error) {
	switch frequency {
	case sm.Daily:
		return "1d", nil
	case sm.Weekly:
		return "1wk", nil
	case sm.Monthly:
		return "1mo", nil
	default:
		return "", fmt.Errorf("%w: yahoo has no %d per year interval", c.ErrUnsupportedFrequency, frequency)
	}
}

func buildRequestPath(ticker, interval string, start, end time.Time) *url.URL {
	endpoint := &url.URL{Path: chartPath + ticker}

	query := endpoint.Query()
	query.Set("interval", interval)
	query.Set("events", "div,split")
	query.Set("includeAdjustedClose", "true")
	if start.IsZero() && end.IsZero() {
		query.Set("range", "max")
	} else {
		if end.IsZero() {
			end = time.Now()
		}
		query.Set("period1", strconv.FormatInt(start.Unix(), 10))
		query.Set("period2", strconv.FormatInt(end.Unix(), 10))
	}

	endpoint.RawQuery = query.Encode()
	return endpoint
}

func parseChart(body []byte) (*m.TimeSeriesResult, error) {
	var raw chartResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling chart: %w", err)
	}

	if raw.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, raw.Chart.Error.Code, raw.Chart.Error.Description)
	}
	if len(raw.Chart.Result) == 0 {
		return nil, ErrNoData
	}

	result := raw.Chart.Result[0]
	location := time.FixedZone(result.Meta.ExchangeTimezoneName, result.Meta.GmtOffset)

	n := len(result.Timestamp)
	if len(result.Indicators.Quote) == 0 && n > 0 {
		return nil, fmt.Errorf("%w: chart for %s has no quotes", ErrNoData, result.Meta.Symbol)
	}

	at := func(values []null.Float, i int) null.Float {
		if i < len(values) {
			return values[i]
		}
		return null.Float{}
	}

	var adjClose []null.Float
	if len(result.Indicators.AdjClose) > 0 {
		adjClose = result.Indicators.AdjClose[0].AdjClose
	}

	day := func(unix int64) time.Time {
		return ex.TruncateDate(time.Unix(unix, 0).In(location))
	}

	// events on a date without a bar are dropped
	dividends := make(map[time.Time]float64, len(result.Events.Dividends))
	for _, d := range result.Events.Dividends {
		dividends[day(d.Date)] += d.Amount
	}
	splits := make(map[time.Time]float64, len(result.Events.Splits))
	for _, s := range result.Events.Splits {
		if s.Denominator > 0 {
			splits[day(s.Date)] = s.Numerator / s.Denominator
		}
	}

	timeSeries := make([]*m.TimeSeriesData, 0, n)
	for i, ts := range result.Timestamp {
		q := result.Indicators.Quote[0]
		date := day(ts)
		data := &m.TimeSeriesData{
			Timestamp: date,
			TimeSeriesOHLCV: m.TimeSeriesOHLCV{
				Open:   at(q.Open, i),
				High:   at(q.High, i),
				Low:    at(q.Low, i),
				Close:  at(q.Close, i),
				Volume: at(q.Volume, i),
			},
			AdjustedClose:    at(adjClose, i),
			DividendAmount:   null.FloatFrom(dividends[date]),
			SplitCoefficient: null.FloatFrom(1),
		}
		if ratio, ok := splits[date]; ok {
			data.SplitCoefficient = null.FloatFrom(ratio)
		}

		if last := len(timeSeries) - 1; last >= 0 && timeSeries[last].Timestamp.Equal(date) {
			timeSeries[last] = data
			continue
		}
		timeSeries = append(timeSeries, data)
	}

	return &m.TimeSeriesResult{
		Metadata: &m.TimeSeriesMetadata{
			Symbol:        result.Meta.Symbol,
			LastRefreshed: time.Unix(result.Meta.RegularMarketTime, 0).In(location),
			TimeZone:      result.Meta.ExchangeTimezoneName,
		},
		TimeSeries: timeSeries,
	}, nil
}

// truncateEnd keeps an open end open
func truncateEnd(end time.Time) time.Time {
	if end.IsZero() {
		return end
	}
	return ex.TruncateDate(end)
}
