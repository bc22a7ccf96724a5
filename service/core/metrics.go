package core

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rc",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"route", "method", "status"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rc",
			Name:      "provider_fetch_duration_seconds",
			Help:      "Time to fetch one symbol's prices or actions from a provider",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "kind", "outcome"},
	)

	fetchedObservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rc",
			Name:      "price_observations_total",
			Help:      "Adjusted close observations received from providers",
		},
		[]string{"provider"},
	)
)

// kinds of provider fetch
const (
	fetchPrices  = "prices"
	fetchActions = "actions"
)

func observeFetch(provider, kind string, startedAt time.Time, observations int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	fetchDuration.WithLabelValues(provider, kind, outcome).Observe(time.Since(startedAt).Seconds())
	if observations > 0 {
		fetchedObservations.WithLabelValues(provider).Add(float64(observations))
	}
}

// instrument records duration by route pattern so symbols in the query do not blow up cardinality
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(startedAt).Seconds())
	})
}
