// Package metrics registers the service's Prometheus collectors and exposes
// small recording helpers so callers never touch label plumbing directly.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collabhub"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by entity, action and result.",
		},
		[]string{"entity", "action", "result"},
	)

	transitionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transition_duration_seconds",
			Help:      "Duration of lifecycle transitions including side effects.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"entity", "action"},
	)

	cascades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "runs_total",
			Help:      "Cascade deletions by root kind and result (complete, partial).",
		},
		[]string{"root", "result"},
	)

	cascadeDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "deleted_documents_total",
			Help:      "Documents removed by cascades, per collection.",
		},
		[]string{"collection"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "notifications_total",
			Help:      "Notification writes by type and result (written, duplicate, failed).",
		},
		[]string{"type", "result"},
	)

	emails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mailer",
			Name:      "dispatches_total",
			Help:      "Email dispatch attempts by endpoint key and result.",
		},
		[]string{"endpoint", "result"},
	)

	counterRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "repairs_total",
			Help:      "Denormalized counters corrected by the reconciler.",
		},
		[]string{"collection", "field"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		transitions,
		transitionDuration,
		cascades,
		cascadeDeleted,
		notifications,
		emails,
		counterRepairs,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request counts and latency labelled by the
// matched chi route pattern, so ids in paths do not explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordTransition records one lifecycle transition attempt.
func RecordTransition(entity, action, result string, d time.Duration) {
	transitions.WithLabelValues(entity, action, result).Inc()
	transitionDuration.WithLabelValues(entity, action).Observe(d.Seconds())
}

// RecordCascade records a finished cascade and its per-collection counts.
func RecordCascade(root string, partial bool, counts map[string]int) {
	result := "complete"
	if partial {
		result = "partial"
	}
	cascades.WithLabelValues(root, result).Inc()
	for coll, n := range counts {
		cascadeDeleted.WithLabelValues(coll).Add(float64(n))
	}
}

// RecordNotifications records the outcome of one fan-out.
func RecordNotifications(notifType string, written, duplicate, failed int) {
	notifications.WithLabelValues(notifType, "written").Add(float64(written))
	notifications.WithLabelValues(notifType, "duplicate").Add(float64(duplicate))
	notifications.WithLabelValues(notifType, "failed").Add(float64(failed))
}

// RecordEmail records one email dispatch.
func RecordEmail(endpoint string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	emails.WithLabelValues(endpoint, result).Inc()
}

// RecordRepair records one reconciler correction.
func RecordRepair(collection, field string) {
	counterRepairs.WithLabelValues(collection, field).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the admin stream upgrade to a websocket through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: underlying ResponseWriter cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
