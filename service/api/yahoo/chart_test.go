package yahoo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "rc/data/models"
	c "rc/service/api"
	sm "rc/service/models"
)

// three sessions, the last one repeated the way the endpoint does while a session is live
const spyChartBody = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "SPY", "exchangeTimezoneName": "America/New_York", "gmtoffset": -18000, "regularMarketTime": 1670274000},
      "timestamp": [1669905000, 1669991400, 1670250600, 1670274000],
      "indicators": {
        "quote": [{
          "open": [408.77, 402.25, 403.95, 403.95],
          "high": [410.0, 407.86, 404.93, 404.93],
          "low": [404.75, 402.14, 397.24, 397.24],
          "close": [407.38, 406.91, 399.0, 399.59],
          "volume": [76398150, 85771600, null, 76975050]
        }],
        "adjclose": [{"adjclose": [403.83, null, 395.5, 396.11]}]
      }
    }],
    "error": null
  }
}`

// a dividend on the 2nd and a 4:1 split on the 5th
const actionsChartBody = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "XYZ", "exchangeTimezoneName": "America/New_York", "gmtoffset": -18000, "regularMarketTime": 1670250600},
      "timestamp": [1669905000, 1669991400, 1670250600],
      "events": {
        "dividends": {"1669991400": {"amount": 0.23, "date": 1669991400}},
        "splits": {"1670250600": {"date": 1670250600, "numerator": 4, "denominator": 1, "splitRatio": "4:1"}}
      },
      "indicators": {
        "quote": [{"open": [100, 101, 26], "high": [101, 102, 27], "low": [99, 100, 25], "close": [100, 101, 26], "volume": [10, 10, 40]}],
        "adjclose": [{"adjclose": [24.9, 25.25, 26]}]
      }
    }],
    "error": null
  }
}`

const notFoundBody = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

type fakeConnection struct {
	status   int
	body     string
	endpoint *url.URL
}

func (f *fakeConnection) Request(_ context.Context, endpoint *url.URL) (*http.Response, error) {
	f.endpoint = endpoint
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func utcDay(d int) time.Time {
	return time.Date(2022, time.December, d, 0, 0, 0, 0, time.UTC)
}

func TestFetchAdjustedClose(t *testing.T) {
	conn := &fakeConnection{body: spyChartBody}
	client := NewClient(c.NewClient(conn, ""), nil)

	s, err := client.FetchAdjustedClose(context.Background(), "SPY", sm.Daily, utcDay(1), utcDay(6))
	require.NoError(t, err)

	assert.Equal(t, "SPY", s.Name)
	assert.Equal(t, []time.Time{utcDay(1), utcDay(2), utcDay(5)}, s.Dates)
	assert.Equal(t, 403.83, s.Values[0].Float64)
	assert.False(t, s.Values[1].Valid, "json null is no value")
	assert.Equal(t, 396.11, s.Values[2].Float64, "the repeated session keeps the later bar")

	q := conn.endpoint.Query()
	assert.Equal(t, "/v8/finance/chart/SPY", conn.endpoint.Path)
	assert.Equal(t, "1d", q.Get("interval"))
	assert.Equal(t, "1669852800", q.Get("period1"))
}

func TestFetchAdjustedCloseFiltersEnd(t *testing.T) {
	client := NewClient(c.NewClient(&fakeConnection{body: spyChartBody}, ""), nil)

	s, err := client.FetchAdjustedClose(context.Background(), "SPY", sm.Daily, utcDay(2), utcDay(5))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{utcDay(2)}, s.Dates)
}

func TestChartKeepsOHLCV(t *testing.T) {
	client := NewClient(c.NewClient(&fakeConnection{body: spyChartBody}, ""), nil)

	res, err := client.Chart(context.Background(), "SPY", sm.Daily, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, res.TimeSeries, 3)

	assert.Equal(t, "America/New_York", res.Metadata.TimeZone)
	assert.Equal(t, 408.77, res.TimeSeries[0].Open.Float64)
	assert.Equal(t, 76975050.0, res.TimeSeries[2].Volume.Float64)

	// actions were requested, so a bar without one still reports zero and one
	assert.Equal(t, null.FloatFrom(0), res.TimeSeries[0].DividendAmount)
	assert.Equal(t, null.FloatFrom(1), res.TimeSeries[0].SplitCoefficient)
}

func TestChartDecodesEvents(t *testing.T) {
	client := NewClient(c.NewClient(&fakeConnection{body: actionsChartBody}, ""), nil)

	res, err := client.Chart(context.Background(), "XYZ", sm.Daily, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, res.TimeSeries, 3)

	assert.Equal(t, null.FloatFrom(0.23), res.TimeSeries[1].DividendAmount)
	assert.Equal(t, null.FloatFrom(4), res.TimeSeries[2].SplitCoefficient)
	assert.Equal(t, null.FloatFrom(0), res.TimeSeries[2].DividendAmount)
}

func TestFetchActions(t *testing.T) {
	conn := &fakeConnection{body: actionsChartBody}
	client := NewClient(c.NewClient(conn, ""), nil)

	actions, err := client.FetchActions(context.Background(), "XYZ", utcDay(1), utcDay(6))
	require.NoError(t, err)

	assert.Equal(t, "1d", conn.endpoint.Query().Get("interval"))
	assert.Equal(t, "div,split", conn.endpoint.Query().Get("events"))
	assert.Equal(t, []time.Time{utcDay(2), utcDay(5)}, actions.Dates)
	assert.Equal(t, []null.Float{null.FloatFrom(0.23), {}}, actions.Column(m.ActionDividend).Values)
	assert.Equal(t, []null.Float{{}, null.FloatFrom(4)}, actions.Column(m.ActionSplit).Values)

	// the split day is outside a window ending on the 5th
	actions, err = client.FetchActions(context.Background(), "XYZ", utcDay(1), utcDay(5))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{utcDay(2)}, actions.Dates)
}

func TestFetchWeeklyAdjustedClose(t *testing.T) {
	conn := &fakeConnection{body: spyChartBody}
	client := NewClient(c.NewClient(conn, ""), nil)

	_, err := client.FetchAdjustedClose(context.Background(), "SPY", sm.Weekly, utcDay(1), utcDay(6))
	require.NoError(t, err)
	assert.Equal(t, "1wk", conn.endpoint.Query().Get("interval"))

	_, err = client.FetchAdjustedClose(context.Background(), "SPY", sm.Monthly, utcDay(1), utcDay(6))
	require.NoError(t, err)
	assert.Equal(t, "1mo", conn.endpoint.Query().Get("interval"))
}

func TestUnsupportedFrequency(t *testing.T) {
	conn := &fakeConnection{body: spyChartBody}
	client := NewClient(c.NewClient(conn, ""), nil)

	_, err := client.FetchAdjustedClose(context.Background(), "SPY", sm.Yearly, utcDay(1), utcDay(6))
	assert.ErrorIs(t, err, c.ErrUnsupportedFrequency)
	assert.Nil(t, conn.endpoint)
}

func TestRangeMaxWithoutDates(t *testing.T) {
	endpoint := buildRequestPath("^GSPC", "1d", time.Time{}, time.Time{})
	assert.Equal(t, "max", endpoint.Query().Get("range"))
	assert.Empty(t, endpoint.Query().Get("period1"))
}

func TestChartErrors(t *testing.T) {
	client := NewClient(c.NewClient(&fakeConnection{body: notFoundBody}, ""), nil)
	_, err := client.FetchAdjustedClose(context.Background(), "NOPE", sm.Daily, utcDay(1), utcDay(6))
	assert.ErrorIs(t, err, ErrNoData)

	client = NewClient(c.NewClient(&fakeConnection{status: http.StatusNotFound, body: notFoundBody}, ""), nil)
	_, err = client.FetchAdjustedClose(context.Background(), "NOPE", sm.Daily, utcDay(1), utcDay(6))

	var statusErr *c.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
