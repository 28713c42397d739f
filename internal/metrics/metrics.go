package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lambdaauth"

var (
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Total number of Authorization header checks, labeled by outcome and error kind.",
		},
		[]string{"outcome", "kind"},
	)

	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of credentials issued, labeled by token type.",
		},
		[]string{"token_type"},
	)

	AuthLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_latency_seconds",
			Help:      "Time spent authenticating a request (seconds).",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests, labeled by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter.",
		},
		[]string{"scope"},
	)

	IdentityCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_cache_total",
			Help:      "Identity cache lookups, labeled by result (hit, miss, error).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		AuthAttemptsTotal,
		TokensIssuedTotal,
		AuthLatencySeconds,
		HTTPRequestsTotal,
		RateLimitedTotal,
		IdentityCacheTotal,
	)
}
