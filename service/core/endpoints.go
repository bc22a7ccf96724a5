package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	ex "rc/data/extensions"
	m "rc/data/models"
	api "rc/service/api"
	sm "rc/service/models"
)

const (
	CorrelationPairwise = "pairwise"
	CorrelationComplete = "complete"

	// DefaultRequestTimeout applies when the service context sets none
	DefaultRequestTimeout = 60 * time.Second
)

// used when a request has no start date
var DefaultStartDate = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)

var ErrInvalidQuery = errors.New("invalid query")

type analysisRequest struct {
	Symbols   []string
	Start     time.Time
	End       time.Time
	DropNA    bool
	Provider  string
	FFill     bool
	Frequency int
}

func GetHttpServer(sc ServiceContext, addr string) *http.Server {
	server := &http.Server{
		Addr:           addr,
		Handler:        GetRouter(sc),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   sc.requestTimeout() + 5*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if sc.Context != nil {
		server.BaseContext = func(net.Listener) context.Context { return sc.Context }
	}

	return server
}

func GetRouter(sc ServiceContext) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(sc.logger()))
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(sc.requestTimeout()))
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) { ping(w, r, sc) })
		r.Get("/returns", func(w http.ResponseWriter, r *http.Request) { getReturns(w, r, sc) })
		r.Get("/correlation", func(w http.ResponseWriter, r *http.Request) { getCorrelation(w, r, sc) })
		r.Get("/volatility", func(w http.ResponseWriter, r *http.Request) { getVolatility(w, r, sc) })
		r.Get("/summary", func(w http.ResponseWriter, r *http.Request) { getSummary(w, r, sc) })
		r.Get("/actions", func(w http.ResponseWriter, r *http.Request) { getActions(w, r, sc) })
	})

	return r
}

func ping(w http.ResponseWriter, r *http.Request, sc ServiceContext) {
	res := map[string]string{"message": "pong"}
	writeJson(w, r, sc, http.StatusOK, sm.GetServiceResponseOk(&res))
}

func getReturns(w http.ResponseWriter, r *http.Request, sc ServiceContext) {
	req, ok := parseRequest(w, r, sc)
	if !ok {
		return
	}

	returns, ok := loadReturns(w, r, sc, req)
	if !ok {
		return
	}

	res := sm.MapTableToPayload(returns)
	writeJson(w, r, sc, http.StatusOK, sm.GetServiceResponseOk(&res))
}

func getCorrelation(w http.ResponseWriter, r *http.Request, sc ServiceContext) {
	method := r.URL.Query().Get("method")
	if method == "" {
		method = CorrelationPairwise
	}
	if method != CorrelationPairwise && method != CorrelationComplete {
		writeError(w, r, sc, http.StatusBadRequest, fmt.Errorf("%w: unknown correlation method %q", ErrInvalidQuery, method))
		return
	}

	req, ok := parseRequest(w, r, sc)
	if !ok {
		return
	}

	returns, ok := loadReturns(w, r, sc, req)
	if !ok {
		return
	}

	var corr *m.CorrelationMatrix
	if method == CorrelationComplete {
		var err error
		if corr, err = CompleteCaseCorrelation(returns); err != nil {
			writeError(w, r, sc, http.StatusUnprocessableEntity, err)
			return
		}
	} else {
		corr = PairwiseCorrelation(returns)
	}

	res := sm.MapCorrelationToPayload(method, corr)
	writeJson(w, r, sc, http.StatusOK, sm.GetServiceResponseOk(&res))
}

func getVolatility(w http.ResponseWriter, r *http.Request, sc ServiceContext) {
	q := r.URL.Query()

	window, err := intParam(q.Get("window"), DefaultVolatilityWindow)
	if err != nil {
		writeError(w, r, sc, http.StatusBadRequest, err)
		return
	}

	req, ok := parseRequest(w, r, sc)
	if !ok {
		return
	}

	// daily bars keep the 250 session convention, coarser bars annualize by their own count
	fallback := req.Frequency
	if fallback == sm.Daily {
		fallback = DefaultVolatilityPeriodsPerYear
	}
	periods, err := periodsParam(q.Get("periods"), fallback)
	if err != nil {
		writeError(w, r, sc, http.StatusBadRequest, err)
		return
	}

	returns, ok := loadReturns(w, r, sc, req)
	if !ok {
		return
	}

	vol, err := RollingVolatility(returns, window, periods)
	if err != nil {
		writeError(w, r, sc, http.StatusUnprocessableEntity, err)
		return
	}

	res := sm.VolatilityPayload{
		Window:         window,
		PeriodsPerYear: periods,
		Frequency:      sm.ConvertFrequencyToString(req.Frequency),
		TablePayload:   sm.MapTableToPayload(vol),
	}
	writeJson(w, r, sc, http.StatusOK, sm.GetServiceResponseOk(&res))
}

func getSummary(w http.ResponseWriter, r *http.Request, sc ServiceContext) {
	q := r.URL.Query()

	req, ok := parseRequest(w, r, sc)
	if !ok {
		return
	}

	// periods=weeks asks for weekly bars too, unless the bar frequency was given
	if f, named := sm.ConvertStringToFrequency(q.Get("periods")); named && q.Get("frequency") == "" {
		req.Frequency = f
	}
	periods, err := periodsParam(q.Get("periods"), req.Frequency)
	if err != nil {
		writeError(w, r, sc, http.StatusBadRequest, err)
		return
	}
	top, err := intParam(q.Get("drawdowns"), DefaultDrawdownEpisodes)
	if err != nil {
		writeError(w, r, sc, http.StatusBadRequest, err)
		return
	}

	returns, ok := loadReturns(w, r, sc, req)
	if !ok {
		return
	}

	metrics, err := PerformanceSummary(returns, periods, top)
	if err != nil {
		writeError(w, r, sc, http.StatusUnprocessableEntity, err)
		return
	}

	res := sm.SummaryPayload{
		PeriodsPerYear: periods,
		Frequency:      sm.ConvertFrequencyToString(req.Frequency),
		Metrics:        metrics,
	}
	writeJson(w, r, sc, http.StatusOK, sm.GetServiceResponseOk(&res))
}

func getActions(w http.ResponseWriter, r *http.Request, sc ServiceContext) {
	req, ok := parseRequest(w, r, sc)
	if !ok {
		return
	}

	tables, err := sc.FetchActions(r.Context(), req.Provider, req.Symbols, req.Start, req.End)
	if err != nil {
		writeError(w, r, sc, fetchErrorStatus(err), err)
		return
	}

	res := sm.MapActionsToPayload(req.Symbols, tables)
	writeJson(w, r, sc, http.StatusOK, sm.GetServiceResponseOk(&res))
}

// parseRequest writes the 400 itself, ok is false when it did
func parseRequest(w http.ResponseWriter, r *http.Request, sc ServiceContext) (analysisRequest, bool) {
	req, err := parseAnalysisRequest(r, sc)
	if err != nil {
		writeError(w, r, sc, http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}

// loadReturns fetches prices and turns them into returns.
// It writes the error response itself, ok is false when it did.
func loadReturns(w http.ResponseWriter, r *http.Request, sc ServiceContext, req analysisRequest) (*m.Table, bool) {
	prices, err := sc.FetchPriceTable(r.Context(), req.Provider, req.Symbols, req.Frequency, req.Start, req.End)
	if err != nil {
		writeError(w, r, sc, fetchErrorStatus(err), err)
		return nil, false
	}

	if req.FFill {
		prices = prices.ForwardFill()
	}

	res, err := CalculateReturns(prices, req.DropNA)
	if err != nil {
		writeError(w, r, sc, http.StatusUnprocessableEntity, err)
		return nil, false
	}

	return res.(*m.Table), true
}

func parseAnalysisRequest(r *http.Request, sc ServiceContext) (analysisRequest, error) {
	q := r.URL.Query()

	req := analysisRequest{
		Symbols:   ex.SplitAndTrim(q.Get("symbols")),
		Start:     DefaultStartDate,
		End:       ex.TruncateDate(time.Now()),
		DropNA:    DefaultDropNA,
		Provider:  q.Get("provider"),
		Frequency: sm.Daily,
	}

	if len(req.Symbols) == 0 {
		return req, fmt.Errorf("%w: %w", ErrInvalidQuery, ErrNoSymbols)
	}
	if req.Provider == "" {
		req.Provider = sc.DefaultProvider
	}

	var err error
	if req.Start, err = dateParam("start", q.Get("start"), req.Start); err != nil {
		return req, err
	}
	if req.End, err = dateParam("end", q.Get("end"), req.End); err != nil {
		return req, err
	}
	if req.DropNA, err = boolParam("dropna", q.Get("dropna"), req.DropNA); err != nil {
		return req, err
	}
	if req.FFill, err = boolParam("ffill", q.Get("ffill"), false); err != nil {
		return req, err
	}
	if raw := q.Get("frequency"); raw != "" {
		f, ok := sm.ConvertStringToFrequency(raw)
		if !ok {
			return req, fmt.Errorf("%w: unknown frequency %q", ErrInvalidQuery, raw)
		}
		req.Frequency = f
	}

	return req, nil
}

// fetchErrorStatus separates requests that could never succeed from provider failures
func fetchErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNoSymbols),
		errors.Is(err, ErrDuplicateSymbol),
		errors.Is(err, ErrUnknownProvider),
		errors.Is(err, ErrInvalidDateRange),
		errors.Is(err, ErrNoActions),
		errors.Is(err, api.ErrUnsupportedFrequency):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		// a provider timed out while the request itself is still live
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func dateParam(name, raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return fallback, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", ErrInvalidQuery, name, raw)
	}
	return d, nil
}

func boolParam(name, raw string, fallback bool) (bool, error) {
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%w: %s must be true or false, got %q", ErrInvalidQuery, name, raw)
	}
	return b, nil
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%w: expected an integer, got %q", ErrInvalidQuery, raw)
	}
	return v, nil
}

// periodsParam accepts a count per year or a frequency name such as "weeks"
func periodsParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	if f, ok := sm.ConvertStringToFrequency(raw); ok {
		return f, nil
	}
	return intParam(raw, fallback)
}

func writeError(w http.ResponseWriter, r *http.Request, sc ServiceContext, status int, err error) {
	logger := sc.logger().With(
		zap.String("path", r.URL.Path),
		zap.String("requestId", middleware.GetReqID(r.Context())),
		zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	} else {
		logger.Info("request rejected", zap.Error(err))
	}
	writeJson(w, r, sc, status, sm.GetServiceResponseError(err.Error()))
}

// writeJson writes nothing once the request deadline has passed, the timeout middleware answers 504 then
func writeJson(w http.ResponseWriter, r *http.Request, sc ServiceContext, status int, body any) {
	if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		sc.logger().Warn("request deadline passed, dropping response",
			zap.String("path", r.URL.Path),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.Int("status", status))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		sc.logger().Error("error encoding response", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			startedAt := time.Now()

			defer func() {
				logger.Info("served request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("query", r.URL.RawQuery),
					zap.String("requestId", middleware.GetReqID(r.Context())),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(startedAt)))
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
