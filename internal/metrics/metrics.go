// Package metrics provides Prometheus instrumentation for PaySentry.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/paysentry/internal/domain"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paysentry",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paysentry",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ScansTotal counts evaluated scans by risk level.
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paysentry",
			Name:      "scans_total",
			Help:      "Total scans classified by risk level.",
		},
		[]string{"level"},
	)

	// ParseFailuresTotal counts scanned strings that were not valid payment addresses.
	ParseFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paysentry",
		Name:      "parse_failures_total",
		Help:      "Total scanned strings rejected by the address parser.",
	})

	// GeoAnomaliesTotal counts geo findings by kind.
	GeoAnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paysentry",
			Name:      "geo_anomalies_total",
			Help:      "Total geo findings by kind (unusual_location, fraud_alert, zone_exit).",
		},
		[]string{"kind"},
	)

	// SuggestionsTotal counts generated suggestions by kind.
	SuggestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paysentry",
			Name:      "suggestions_total",
			Help:      "Total suggestions generated by kind.",
		},
		[]string{"kind"},
	)

	// RiskCacheLookups counts classification cache lookups by result.
	RiskCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paysentry",
			Name:      "risk_cache_lookups_total",
			Help:      "Classification cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScansTotal,
		ParseFailuresTotal,
		GeoAnomaliesTotal,
		SuggestionsTotal,
		RiskCacheLookups,
	)
}

// ObserveScan records one classified scan.
func ObserveScan(level domain.RiskLevel) {
	ScansTotal.WithLabelValues(string(level)).Inc()
}

// ObserveGeo records geo findings for one scan.
func ObserveGeo(unusual bool, fraudAlerts, zoneExits int) {
	if unusual {
		GeoAnomaliesTotal.WithLabelValues("unusual_location").Inc()
	}
	if fraudAlerts > 0 {
		GeoAnomaliesTotal.WithLabelValues("fraud_alert").Add(float64(fraudAlerts))
	}
	if zoneExits > 0 {
		GeoAnomaliesTotal.WithLabelValues("zone_exit").Add(float64(zoneExits))
	}
}

// ObserveSuggestions records a generated suggestion list.
func ObserveSuggestions(suggestions []domain.Suggestion) {
	for _, s := range suggestions {
		SuggestionsTotal.WithLabelValues(string(s.Kind)).Inc()
	}
}

// ObserveCache records a classification cache lookup.
func ObserveCache(hit bool) {
	if hit {
		RiskCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	RiskCacheLookups.WithLabelValues("miss").Inc()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Route pattern, not the raw path, to bound label cardinality
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(ww.Status())).Inc()
	})
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code == 0:
		return "2xx"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
