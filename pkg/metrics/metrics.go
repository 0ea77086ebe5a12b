package metrics

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
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "creatorpass_build_info",
			Help: "Build information of the CreatorPass gateway",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creatorpass_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creatorpass_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "creatorpass_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Ledger scan metrics
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creatorpass_ledger_scans_total",
			Help: "Total number of program account scans",
		},
		[]string{"kind", "status"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creatorpass_ledger_scan_duration_seconds",
			Help:    "Duration of program account scans in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
		[]string{"kind"},
	)

	ScanAccountsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creatorpass_ledger_scan_accounts_skipped_total",
			Help: "Accounts dropped from scan results because they failed to decode or verify",
		},
		[]string{"kind", "reason"},
	)

	// Transaction metrics
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creatorpass_transactions_submitted_total",
			Help: "Total number of transactions submitted, by business intent",
		},
		[]string{"intent", "status"},
	)

	// Solana Pay metrics
	PaymentRequestsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creatorpass_payment_requests_created_total",
			Help: "Total number of payment requests generated",
		},
	)

	PaymentsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "creatorpass_payments_confirmed_total",
			Help: "Total number of payment references observed on-chain",
		},
	)
)

// Middleware instruments HTTP handlers with request count, duration, and
// in-flight metrics. Paths are recorded from the chi route pattern so
// parameterized routes don't explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
