package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Authorization endpoint
	AuthorizeDecisionsTotal *prometheus.CounterVec
	CodesIssuedTotal        prometheus.Counter

	// Token Metrics
	TokenExchangesTotal  *prometheus.CounterVec
	TokensIssuedTotal    *prometheus.CounterVec
	TokensRevokedTotal   *prometheus.CounterVec
	TokenValidationTotal *prometheus.CounterVec

	// Authentication Metrics
	LoginsTotal *prometheus.CounterVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		AuthorizeDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_authorize_decisions_total",
				Help: "Total number of authorization endpoint outcomes",
			},
			[]string{"outcome"},
		),
		CodesIssuedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "oauth2_authorization_codes_issued_total",
				Help: "Total number of authorization codes issued after consent",
			},
		),
		TokenExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_token_exchanges_total",
				Help: "Total number of token endpoint requests by result",
			},
			[]string{"grant_type", "result"},
		),
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"token_type", "grant_type"}, // token_type: access, refresh
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"token_type"},
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth2_token_validation_total",
				Help: "Total number of bearer token validations",
			},
			[]string{"result"}, // valid, invalid, error
		),
		LoginsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_total",
				Help: "Total number of login attempts",
			},
			[]string{"source", "result"}, // source: session, jwt_proxy
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}

// RecordAuthorizeDecision records the outcome of an authorization request
func (m *Metrics) RecordAuthorizeDecision(outcome string) {
	m.AuthorizeDecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCodeIssued records an authorization code minted after consent
func (m *Metrics) RecordCodeIssued() {
	m.CodesIssuedTotal.Inc()
}

// RecordTokenExchange records a token endpoint result
func (m *Metrics) RecordTokenExchange(grantType, result string) {
	m.TokenExchangesTotal.WithLabelValues(grantType, result).Inc()
}

// RecordTokenIssued records token issuance
func (m *Metrics) RecordTokenIssued(tokenType, grantType string) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
}

// RecordTokenRevoked records token revocation
func (m *Metrics) RecordTokenRevoked(tokenType string) {
	m.TokensRevokedTotal.WithLabelValues(tokenType).Inc()
}

// RecordTokenValidation records a bearer token lookup result
func (m *Metrics) RecordTokenValidation(result string) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
}

// RecordLogin records login attempt
func (m *Metrics) RecordLogin(source string, success bool) {
	result := resultSuccess
	if !success {
		result = resultFailure
	}
	m.LoginsTotal.WithLabelValues(source, result).Inc()
}
