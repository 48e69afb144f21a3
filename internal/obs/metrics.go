package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Credential lifecycle metrics
var (
	authOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_outcomes_total",
			Help: "Register/login/logout/validate outcomes by reason.",
		},
		[]string{"operation", "reason"},
	)

	revocationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_revocation_store_errors_total",
			Help: "Revocation store failures; reads fail open, writes fail closed.",
		},
		[]string{"op"},
	)

	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the last readiness check passed.",
	})

	notificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full.",
		},
		[]string{"event_type"},
	)
)

var initOnce sync.Once

// Init registers the service metrics in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authOutcomes, revocationErrors, notificationsDropped, serviceReady,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuth counts one credential operation outcome.
func ObserveAuth(operation, reason string) {
	authOutcomes.WithLabelValues(operation, reason).Inc()
}

// RevocationStoreError counts a failed revocation store call.
func RevocationStoreError(op string) {
	revocationErrors.WithLabelValues(op).Inc()
}

// NotificationDropped counts an event rejected by a full queue.
func NotificationDropped(eventType string) {
	notificationsDropped.WithLabelValues(eventType).Inc()
}

// SetReady records the outcome of the last readiness check.
func SetReady(ready bool) {
	if ready {
		serviceReady.Set(1)
		return
	}
	serviceReady.Set(0)
}

// CanonicalPath collapses unknown paths so label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	switch path {
	case "/auth/register", "/auth/login", "/auth/logout", "/auth/validate",
		"/auth/me", "/auth/health", "/healthz", "/readyz", "/metrics":
		return path
	}
	return "other"
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
