package alpha_vantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"go.uber.org/zap"

	ex "rc/data/extensions"
	m "rc/data/models"
	c "rc/service/api"
)

// public
const (
	HostDefault = "www.alphavantage.co"
)

// private
const (
	// default query parameters
	fullOutputSize  = "full"
	defaultDataType = "json"
	defaultTimeout  = time.Second * 30

	// api request elements
	query      = "query"
	apiKey     = "apikey"
	dataType   = "datatype"
	outputSize = "outputsize"
	symbol     = "symbol"
	function   = "function"

	metaDataKey = "Meta Data"
)

var (
	ErrApiMessage  = errors.New("alpha vantage returned a message instead of data")
	ErrRateLimited = errors.New("alpha vantage rate limit reached")
)

var (
	timeSeriesDateFormats = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
	}

	ohlcvResultKeys = map[string]string{
		"Open":   ". Open",
		"High":   ". High",
		"Low":    ". Low",
		"Close":  ". Close",
		"Volume": ". Volume",
	}

	// keys the api uses for an error or throttling body, sent with a 200
	messageKeys = []string{"Error Message", "Note", "Information"}
)

type AlphaVantageClient struct {
	*c.Client
	Logger *zap.Logger
}

// GetClient connects to the public host, a zero timeout uses the default
func GetClient(apiKey string, timeout time.Duration, logger *zap.Logger) AlphaVantageClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewClient(c.ClientFactory(HostDefault, apiKey, timeout), logger)
}

func NewClient(client *c.Client, logger *zap.Logger) AlphaVantageClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return AlphaVantageClient{
		Client: client,
		Logger: logger.Named("alphavantage"),
	}
}

// FetchAdjustedClose returns the adjusted close for dates in [start, end), keyed on the calendar date in UTC.
// Weekly and monthly bars are dated by the last session of the period.
func (avc AlphaVantageClient) FetchAdjustedClose(ctx context.Context, ticker string, frequency int, start, end time.Time) (*m.Series, error) {
	timeSeries, err := TimeSeriesFor(frequency)
	if err != nil {
		return nil, err
	}

	res, err := avc.adjustedTimeSeries(ctx, timeSeries, ticker)
	if err != nil {
		return nil, err
	}

	series, err := res.AdjustedCloseSeries(ex.TruncateDate(start), truncateEnd(end))
	if err != nil {
		return nil, fmt.Errorf("error building adjusted close series for %s: %w", ticker, err)
	}

	// the provider echoes the symbol back, the caller's spelling is the column name
	series.Name = ticker

	avc.Logger.Debug("fetched adjusted close",
		zap.String("symbol", ticker),
		zap.String("function", timeSeries.Function()),
		zap.Time("lastRefreshed", res.Metadata.LastRefreshed),
		zap.Int("received", len(res.TimeSeries)),
		zap.Int("kept", series.Len()))

	return series, nil
}

// FetchActions returns the dividends and splits in [start, end) from the daily adjusted series
func (avc AlphaVantageClient) FetchActions(ctx context.Context, ticker string, start, end time.Time) (*m.Table, error) {
	res, err := avc.adjustedTimeSeries(ctx, TimeSeriesDailyAdjusted, ticker)
	if err != nil {
		return nil, err
	}

	actions, err := res.ActionsTable(ex.TruncateDate(start), truncateEnd(end))
	if err != nil {
		return nil, fmt.Errorf("error building actions for %s: %w", ticker, err)
	}

	avc.Logger.Debug("fetched actions", zap.String("symbol", ticker), zap.Int("actions", actions.Len()))

	return actions, nil
}

// adjustedTimeSeries requests the full history of one function, bars dated on the calendar date in UTC
// https://www.alphavantage.co/documentation/#time-series-data
func (avc AlphaVantageClient) adjustedTimeSeries(ctx context.Context, timeSeries TimeSeries, ticker string) (*m.TimeSeriesResult, error) {
	params := map[string]string{
		function: timeSeries.Function(),
		symbol:   ticker,
	}
	if timeSeries.sized() {
		params[outputSize] = fullOutputSize
	}

	raw, err := avc.request(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s for %s: %w", timeSeries.Function(), ticker, err)
	}

	metaData, timeZone, err := parseMetaData(raw)
	if err != nil {
		return nil, err
	}

	timeSeriesData, err := parseTimeSeriesDataResult(raw, timeSeries.TimeSeriesKey(), timeZone)
	if err != nil {
		return nil, err
	}

	for _, d := range timeSeriesData {
		d.Timestamp = ex.TruncateDate(d.Timestamp)
	}

	return &m.TimeSeriesResult{
		Metadata:   metaData,
		TimeSeries: timeSeriesData,
	}, nil
}

func (avc AlphaVantageClient) request(ctx context.Context, params map[string]string) (map[string]json.RawMessage, error) {
	if avc.Client == nil {
		panic("alpha vantage client has not been set.")
	}

	response, err := avc.Client.Connection.Request(ctx, avc.buildRequestPath(params))
	if err != nil {
		return nil, err
	}

	body, err := c.ReadBody(response)
	if err != nil {
		return nil, err
	}

	return parseRawJson(body)
}

func (avc AlphaVantageClient) buildRequestPath(params map[string]string) *url.URL {
	// build our URL
	endpoint := &url.URL{}
	endpoint.Path = query

	// base parameters
	query := endpoint.Query()
	query.Set(apiKey, avc.Client.ApiKey)
	query.Set(dataType, defaultDataType)

	// additional parameters
	for key, value := range params {
		query.Set(key, value)
	}

	endpoint.RawQuery = query.Encode()

	return endpoint
}

func parseRawJson(body []byte) (raw map[string]json.RawMessage, err error) {
	// converting to a <string, raw message> map
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	if _, ok := raw[metaDataKey]; ok {
		return raw, nil
	}

	for _, key := range messageKeys {
		var message string
		if err := json.Unmarshal(raw[key], &message); err != nil || message == "" {
			continue
		}
		lower := strings.ToLower(message)
		if strings.Contains(lower, "call frequency") || strings.Contains(lower, "rate limit") {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, message)
		}
		return nil, fmt.Errorf("%w: %s", ErrApiMessage, message)
	}

	return nil, fmt.Errorf("%w: response has no meta data", ErrApiMessage)
}

func parseMetaData(raw map[string]json.RawMessage) (*m.TimeSeriesMetadata, *time.Location, error) {
	var metadataElements map[string]string
	if err := json.Unmarshal(raw[metaDataKey], &metadataElements); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling meta data: %w", err)
	}

	metaDataKeys := slices.Collect(maps.Keys(metadataElements))
	find := func(suffix string) (string, bool) {
		key, err := ex.FilterSingle(metaDataKeys, func(s string) bool { return ex.HasSuffixFold(s, suffix) })
		return key, err == nil
	}

	symbolKey, ok := find(". Symbol")
	if !ok {
		return nil, nil, fmt.Errorf("error extracting symbol for meta data")
	}

	timeZoneKey, ok := find(". Time Zone")
	if !ok {
		return nil, nil, fmt.Errorf("error extracting time zone for meta data")
	}

	timeZone, err := getTimeZone(metadataElements[timeZoneKey])
	if err != nil {
		return nil, nil, fmt.Errorf("error converting time zone key %s, to time.Location: %w", metadataElements[timeZoneKey], err)
	}

	lastRefreshedKey, ok := find(". Last Refreshed")
	if !ok {
		return nil, nil, fmt.Errorf("error extracting last refreshed date")
	}

	lastRefreshed, err := parseDate(metadataElements[lastRefreshedKey], timeZone)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing last refreshed date: %w", err)
	}

	return &m.TimeSeriesMetadata{
		Symbol:        metadataElements[symbolKey],
		LastRefreshed: lastRefreshed,
		TimeZone:      metadataElements[timeZoneKey],
	}, timeZone, nil
}

func parseTimeSeriesDataResult(raw map[string]json.RawMessage, key string, location *time.Location) ([]*m.TimeSeriesData, error) {
	var timeSeriesElements map[string]map[string]string
	if err := json.Unmarshal(raw[key], &timeSeriesElements); err != nil {
		return nil, fmt.Errorf("error unmarshaling time series %q: %w", key, err)
	}

	timeSeries := make([]*m.TimeSeriesData, 0, len(timeSeriesElements))
	if len(timeSeriesElements) == 0 {
		return timeSeries, nil
	}

	// populate the lookups
	var firstValue map[string]string
	for _, v := range timeSeriesElements {
		firstValue = v
		break
	}

	ohlcvLookup, err := getLookupKey(ohlcvResultKeys, firstValue)
	if err != nil {
		return nil, err
	}

	// weekly and monthly bars have no split coefficient, a missing key parses to no value
	valueHeaders := slices.Collect(maps.Keys(firstValue))
	findHeader := func(suffix string) string {
		key, _ := ex.FilterSingle(valueHeaders, func(s string) bool { return ex.HasSuffixFold(s, suffix) })
		return key
	}
	adjustedCloseKey := findHeader(". adjusted close")
	dividendAmountKey := findHeader(". dividend amount")
	splitCoefficientKey := findHeader(". split coefficient")

	for timeSeriesKey, timeSeriesValue := range timeSeriesElements {
		// get timestamp
		timestamp, err := parseDate(timeSeriesKey, location)
		if err != nil {
			return nil, fmt.Errorf("error converting TIMESTAMP from string to time.Time: %w", err)
		}

		// get OHLCV
		ohlcv, err := parseOHLCV(timeSeriesValue, ohlcvLookup)
		if err != nil {
			return nil, fmt.Errorf("error parsing OHLCV: %w", err)
		}

		timeSeries = append(timeSeries, &m.TimeSeriesData{
			Timestamp:        timestamp,
			TimeSeriesOHLCV:  ohlcv,
			AdjustedClose:    parseFloat(timeSeriesValue[adjustedCloseKey]),
			DividendAmount:   parseFloat(timeSeriesValue[dividendAmountKey]),
			SplitCoefficient: parseFloat(timeSeriesValue[splitCoefficientKey]),
		})
	}

	return timeSeries, nil
}

func parseOHLCV(value, lookup map[string]string) (res m.TimeSeriesOHLCV, err error) {
	v := reflect.ValueOf(&res).Elem()
	for jsonKey, structAttribute := range lookup {
		field := v.FieldByName(structAttribute)
		if !field.IsValid() {
			return res, fmt.Errorf("field %s does not exist", structAttribute)
		}
		if !field.CanSet() {
			return res, fmt.Errorf("field %s cannot be set", structAttribute)
		}

		pv := parseFloat(value[jsonKey])
		field.Set(reflect.ValueOf(pv))
	}
	return
}

func getLookupKey(expectedKeys, values map[string]string) (map[string]string, error) {
	res := make(map[string]string)
	responseValueHeaders := slices.Collect(maps.Keys(values))

	for key, value := range expectedKeys {
		f := func(s string) bool { return ex.HasSuffixFold(s, value) }
		if jsonKey, err := ex.FilterSingle(responseValueHeaders, f); err == nil {
			res[jsonKey] = key
		}
	}

	if len(res) == 0 {
		return nil, fmt.Errorf("error generating key value map from av response object. Available headers: %v", responseValueHeaders)
	}

	return res, nil
}

// getTimeZone falls back to UTC for zones we have no mapping for
func getTimeZone(location string) (*time.Location, error) {
	var loc string
	switch strings.ToUpper(location) {
	case "US/EASTERN":
		loc = "America/New_York"
	default:
		return time.UTC, nil
	}

	res, err := time.LoadLocation(loc)
	if err != nil {
		return nil, fmt.Errorf("error parsing time zone %s in time.LoadLocation", loc)
	}

	return res, nil
}

func parseDate(dateString string, location *time.Location) (time.Time, error) {
	for _, format := range timeSeriesDateFormats {
		t, err := time.ParseInLocation(format, dateString, location)
		if err != nil {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("error converting date %s to time.Time", dateString)
}

func parseFloat(val string) null.Float {
	if val != "" {
		if conv, err := strconv.ParseFloat(val, 64); err == nil {
			return null.FloatFrom(conv)
		}
	}
	return null.Float{}
}

// truncateEnd keeps an open end open
func truncateEnd(end time.Time) time.Time {
	if end.IsZero() {
		return end
	}
	return ex.TruncateDate(end)
}
