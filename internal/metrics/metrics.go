package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// All metrics are low-cardinality: route patterns, not raw paths; token
// kind, never token values.

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route"},
	)

	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Tokens issued by kind (user or service)",
		},
		[]string{"kind"},
	)

	TokenRenewalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_token_renewals_total",
			Help: "Sliding renewals applied during validation",
		},
	)

	AccessCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_access_cache_total",
			Help: "Permissions-cache lookups by outcome (hit or miss)",
		},
		[]string{"outcome"},
	)

	ReapedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_reaped_rows_total",
			Help: "Expired rows removed by the reaper, by table",
		},
		[]string{"table"},
	)

	LoginFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_login_failures_total",
			Help: "Failed login attempts",
		},
	)
)

func RecordRequest(route string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}

func RecordTokenIssued(kind string) {
	TokensIssuedTotal.WithLabelValues(kind).Inc()
}

func RecordRenewal() {
	TokenRenewalsTotal.Inc()
}

func RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	AccessCacheTotal.WithLabelValues(outcome).Inc()
}

func RecordReap(tokens, cacheRows int64) {
	ReapedRowsTotal.WithLabelValues("tokens_cache").Add(float64(tokens))
	ReapedRowsTotal.WithLabelValues("permissions_cache").Add(float64(cacheRows))
}

func RecordLoginFailure() {
	LoginFailuresTotal.Inc()
}

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
