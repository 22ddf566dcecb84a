package prometheus

import (
	"strconv"
	"time"

	"tprm-service/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   prometheus.CounterVec
	HttpRequestDuration prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsCounter prometheus.Counter
	AuthSuccessCounter  prometheus.Counter
	AuthErrorsCounter   prometheus.Counter

	// Tenant context metrics
	TenantContextMissingCounter prometheus.Counter
	PermissionDeniedCounter     prometheus.CounterVec

	// Rate limiting
	RateLimitedCounter prometheus.Counter

	// Database operation metrics
	DbOperationDuration prometheus.HistogramVec

	// Domain operation metrics
	ContractOperationsCounter prometheus.CounterVec
	RFPOperationsCounter      prometheus.CounterVec
	AwardAcceptsCounter       prometheus.Counter
	RiskTriggersCounter       prometheus.CounterVec
	EmailsSentCounter         prometheus.CounterVec
	FileOperationsCounter     prometheus.CounterVec
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(cfg *config.Config) {
	prefix := cfg.Metrics.Prefix

	HttpRequestsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	AuthAttemptsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
	)

	AuthSuccessCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_success_total",
			Help: "Total number of successful authentications",
		},
	)

	AuthErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
	)

	TenantContextMissingCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_tenant_context_missing_total",
			Help: "Requests rejected because no tenant is bound to the user",
		},
	)

	PermissionDeniedCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_permission_denied_total",
			Help: "Requests rejected by the RBAC permission gate",
		},
		[]string{"permission"},
	)

	RateLimitedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter",
		},
	)

	DbOperationDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ContractOperationsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_contract_operations_total",
			Help: "Total number of contract operations",
		},
		[]string{"operation"},
	)

	RFPOperationsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_rfp_operations_total",
			Help: "Total number of RFP operations",
		},
		[]string{"operation"},
	)

	AwardAcceptsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_award_accepts_total",
			Help: "Total number of award acceptances processed",
		},
	)

	RiskTriggersCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_risk_triggers_total",
			Help: "Total number of risk analysis triggers",
		},
		[]string{"outcome"},
	)

	EmailsSentCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_emails_sent_total",
			Help: "Total number of emails sent by template",
		},
		[]string{"template", "status"},
	)

	FileOperationsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_file_operations_total",
			Help: "Total number of storage gateway operations",
		},
		[]string{"operation", "status"},
	)
}

// RecordContractOperation increments the contract operation counter
func RecordContractOperation(operation string) {
	ContractOperationsCounter.WithLabelValues(operation).Inc()
}

// RecordRFPOperation increments the RFP operation counter
func RecordRFPOperation(operation string) {
	RFPOperationsCounter.WithLabelValues(operation).Inc()
}

// MetricsMiddleware tracks request counts and latency per route
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			HttpRequestsTotal.WithLabelValues(c.Request().Method, c.Path(), status).Inc()
			HttpRequestDuration.WithLabelValues(c.Request().Method, c.Path(), status).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// TrackDBOperation returns a function that records the duration of a database
// operation when called. Use with defer:
//
//	defer prometheus.TrackDBOperation("insert")(time.Now())
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DbOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
