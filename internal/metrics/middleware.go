package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP API Prometheus metrics. The route label is the chi pattern, so a
// parameterized route stays one series.
var (
	HTTPRequestDuration = histogramVec("http_request_duration_seconds", "HTTP request latency",
		[]float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}, "method", "route", "status")

	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)
)

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

var httpGroup = newGroup(HTTPRequestDuration, HTTPRequestsInFlight)

// RegisterHTTPMetrics registers the HTTP API metrics.
func RegisterHTTPMetrics() { httpGroup.register() }

// Middleware observes every request's latency by method, route and status.
// Request counts come from the histogram's _count series.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			HTTPRequestsInFlight.Inc()
			defer HTTPRequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			HTTPRequestDuration.
				WithLabelValues(r.Method, routeOf(r), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
		})
	}
}

func routeOf(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}
