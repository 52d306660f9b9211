package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg prometheus.Gatherer

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	commits          *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
	triggers         *prometheus.CounterVec
	scheduleFailures prometheus.Counter
	publishFailures  prometheus.Counter
	subscribers      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spotthespy_commits_total",
			Help: "Session mutations committed, by operation.",
		}, []string{"op"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spotthespy_commit_conflicts_total",
			Help: "Compare-and-set attempts lost to a concurrent writer, by operation.",
		}, []string{"op"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spotthespy_phase_transitions_total",
			Help: "Committed phase changes.",
		}, []string{"from", "to"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spotthespy_rounds_resolved_total",
			Help: "Resolved rounds by outcome.",
		}, []string{"outcome"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spotthespy_triggers_delivered_total",
			Help: "Delivered phase triggers by result (advanced, stale, error).",
		}, []string{"result"}),
		scheduleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spotthespy_schedule_failures_total",
			Help: "Triggers that could not be scheduled.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spotthespy_publish_failures_total",
			Help: "Deltas that could not be published.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spotthespy_subscribers",
			Help: "Open websocket subscriptions.",
		}),
	}

	reg.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.commits, m.conflicts, m.transitions, m.outcomes, m.triggers,
		m.scheduleFailures, m.publishFailures, m.subscribers,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Commit(op string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(op).Inc()
}

func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Resolved(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

// Trigger counts a delivered trigger; result is advanced, stale or error.
func (m *Metrics) Trigger(result string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(result).Inc()
}

func (m *Metrics) ScheduleFailed() {
	if m == nil {
		return
	}
	m.scheduleFailures.Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

// Instrument measures request rate, latency and in-flight count.
// The path label is the chi route pattern so ids do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
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

// Hijack allows websocket upgrades through the instrumented writer.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Flush passes through to the underlying writer when it supports flushing.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
