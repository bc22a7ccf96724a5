package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	ex "rc/data/extensions"
	m "rc/data/models"
)

// FetchWorkers bounds how many symbols are requested at once
const FetchWorkers = 4

var (
	ErrNoSymbols        = errors.New("at least one symbol is required")
	ErrDuplicateSymbol  = errors.New("duplicate symbol")
	ErrUnknownProvider  = errors.New("unknown market data provider")
	ErrInvalidDateRange = errors.New("start must be before end")
	ErrNoActions        = errors.New("provider does not report corporate actions")
)

// PriceFetcher returns one symbol's adjusted close for dates in [start, end).
// Frequency is the bar size in periods per year (sm.Daily, sm.Weekly, sm.Monthly).
type PriceFetcher interface {
	FetchAdjustedClose(ctx context.Context, symbol string, frequency int, start, end time.Time) (*m.Series, error)
}

// ActionFetcher is implemented by providers that report dividends and splits
type ActionFetcher interface {
	FetchActions(ctx context.Context, symbol string, start, end time.Time) (*m.Table, error)
}

// FetchPriceTable fetches every symbol and aligns them on the union of their dates, columns in request order.
// One failed symbol fails the whole table.
func (sc *ServiceContext) FetchPriceTable(ctx context.Context, provider string, symbols []string, frequency int, start, end time.Time) (*m.Table, error) {
	if err := validateSymbols(symbols, start, end); err != nil {
		return nil, err
	}

	fetcher, err := sc.fetcher(provider)
	if err != nil {
		return nil, err
	}

	logger := sc.logger().With(zap.String("provider", provider), zap.Strings("symbols", symbols), zap.Int("frequency", frequency))
	startedAt := time.Now()

	series, err := fetchEach(ctx, symbols, func(ctx context.Context, symbol string) (*m.Series, error) {
		fetchedAt := time.Now()
		s, err := fetcher.FetchAdjustedClose(ctx, symbol, frequency, start, end)
		if err != nil {
			observeFetch(provider, fetchPrices, fetchedAt, 0, err)
			return nil, fmt.Errorf("error fetching %s from %s: %w", symbol, provider, err)
		}
		observeFetch(provider, fetchPrices, fetchedAt, s.Len(), nil)
		if s.Len() == 0 {
			logger.Warn("provider returned no prices", zap.String("symbol", symbol))
		}
		s.Name = symbol
		return s, nil
	})
	if err != nil {
		logger.Error("fetching price table failed", zap.Error(err))
		return nil, err
	}

	table, err := m.AlignSeries(series...)
	if err != nil {
		return nil, fmt.Errorf("error aligning price series: %w", err)
	}

	logger.Info("fetched price table",
		zap.Int("dates", table.Len()),
		zap.Duration("elapsed", time.Since(startedAt)))

	return table, nil
}

// FetchActions fetches the dividend and split table of every symbol, results in request order
func (sc *ServiceContext) FetchActions(ctx context.Context, provider string, symbols []string, start, end time.Time) ([]*m.Table, error) {
	if err := validateSymbols(symbols, start, end); err != nil {
		return nil, err
	}

	fetcher, err := sc.fetcher(provider)
	if err != nil {
		return nil, err
	}
	actionFetcher, ok := fetcher.(ActionFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoActions, provider)
	}

	logger := sc.logger().With(zap.String("provider", provider), zap.Strings("symbols", symbols))

	tables, err := fetchEach(ctx, symbols, func(ctx context.Context, symbol string) (*m.Table, error) {
		fetchedAt := time.Now()
		t, err := actionFetcher.FetchActions(ctx, symbol, start, end)
		observeFetch(provider, fetchActions, fetchedAt, 0, err)
		if err != nil {
			return nil, fmt.Errorf("error fetching actions for %s from %s: %w", symbol, provider, err)
		}
		return t, nil
	})
	if err != nil {
		logger.Error("fetching actions failed", zap.Error(err))
		return nil, err
	}

	logger.Info("fetched actions")
	return tables, nil
}

// fetchEach runs fetch for every symbol on at most FetchWorkers goroutines.
// The first error cancels the rest, results keep the order of symbols.
func fetchEach[T any](ctx context.Context, symbols []string, fetch func(ctx context.Context, symbol string) (T, error)) ([]T, error) {
	res := make([]T, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(FetchWorkers)
	for i, symbol := range symbols {
		g.Go(func() error {
			v, err := fetch(gctx, symbol)
			if err != nil {
				return err
			}
			res[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func validateSymbols(symbols []string, start, end time.Time) error {
	if len(symbols) == 0 {
		return ErrNoSymbols
	}
	if dup, ok := ex.FirstDuplicate(symbols); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSymbol, dup)
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidDateRange, ex.FmtShort(start), ex.FmtShort(end))
	}
	return nil
}

func (sc *ServiceContext) fetcher(provider string) (PriceFetcher, error) {
	if provider == "" {
		provider = sc.DefaultProvider
	}
	fetcher, ok := sc.Fetchers[provider]
	if !ok || fetcher == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return fetcher, nil
}

func (sc *ServiceContext) logger() *zap.Logger {
	if sc.Logger == nil {
		return zap.NewNop()
	}
	return sc.Logger
}
