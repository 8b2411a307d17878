// Package metrics exposes the ledger's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	mutationsTotal   *prometheus.CounterVec
	storageDuration  *prometheus.HistogramVec
	storageErrors    *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	loginAttempts    *prometheus.CounterVec
	degradedLoads    prometheus.Counter
	monthsTracked    prometheus.Gauge
	expensesRecorded prometheus.Counter
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		mutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "household_ledger_mutations_total",
				Help: "Ledger mutations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		storageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "household_storage_duration_milliseconds",
				Help:    "Document load/save duration in milliseconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"operation"},
		),
		storageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "household_storage_errors_total",
				Help: "Document load/save failures",
			},
			[]string{"operation"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "household_events_published_total",
				Help: "Ledger events handed to the broker",
			},
			[]string{"type", "status"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "household_http_requests_total",
				Help: "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "household_http_request_duration_milliseconds",
				Help:    "HTTP request duration in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"method", "route"},
		),
		loginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "household_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		degradedLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "household_degraded_loads_total",
			Help: "Loads that fell back to an empty document because the stored one was unreadable",
		}),
		monthsTracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "household_months_tracked",
			Help: "Months present in the last loaded document",
		}),
		expensesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "household_expenses_recorded_total",
			Help: "Expense records appended",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordMutation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordNoop counts a mutation that matched nothing.
func (m *Metrics) RecordNoop(operation string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(operation, "noop").Inc()
}

func (m *Metrics) ObserveStorage(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.storageDuration.WithLabelValues(operation).Observe(float64(d.Microseconds()) / 1000)
	if err != nil {
		m.storageErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordEvent(eventType string, err error) {
	if m == nil {
		return
	}
	status := "published"
	if err != nil {
		status = "failed"
	}
	m.eventsPublished.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) RecordLogin(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.loginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDegradedLoad() {
	if m == nil {
		return
	}
	m.degradedLoads.Inc()
}

func (m *Metrics) SetMonthsTracked(n int) {
	if m == nil {
		return
	}
	m.monthsTracked.Set(float64(n))
}

func (m *Metrics) AddExpensesRecorded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expensesRecorded.Add(float64(n))
}
